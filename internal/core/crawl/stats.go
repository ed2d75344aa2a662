package crawl

import (
	"path/filepath"
	"sort"

	"github.com/go-enry/go-enry/v2"
)

// LanguageStat は1言語分の集計結果を表す
type LanguageStat struct {
	Language string `json:"language"`
	Files    int    `json:"files"`
}

// Stats はツリー全体の集計結果を表す
type Stats struct {
	Files     int            `json:"files"`
	Dirs      int            `json:"dirs"`
	Languages []LanguageStat `json:"languages"`
}

// ComputeStats はインデックス中のファイルパスから言語別のファイル数を集計する。
// クロール結果はパスとプロパティのみでファイル内容を含まないため、
// 言語判定はファイル名ベースで行う。判定できないファイルは "Other" に分類する。
func ComputeStats(idx *PathIndex) Stats {
	stats := Stats{}
	counts := make(map[string]int)

	for _, e := range idx.Entries() {
		if e.IsDir() {
			stats.Dirs++
			continue
		}
		stats.Files++

		lang := enry.GetLanguage(filepath.Base(e.Path), nil)
		if lang == "" {
			lang = "Other"
		}
		counts[lang]++
	}

	for lang, n := range counts {
		stats.Languages = append(stats.Languages, LanguageStat{Language: lang, Files: n})
	}
	// ファイル数の多い順、同数なら言語名順
	sort.Slice(stats.Languages, func(i, j int) bool {
		if stats.Languages[i].Files != stats.Languages[j].Files {
			return stats.Languages[i].Files > stats.Languages[j].Files
		}
		return stats.Languages[i].Language < stats.Languages[j].Language
	})

	return stats
}
