package models

import (
	"strings"
	"time"
)

// User is a learner, identified by their Telegram user id.
type User struct {
	ID          int64     `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	NativeLang  string    `json:"native_lang" db:"native_lang"`
	TargetLangs string    `json:"target_langs" db:"target_langs"`
	SearchCount int       `json:"search_count" db:"search_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TargetLangList splits the stored comma-separated target languages.
func (u *User) TargetLangList() []string {
	if u.TargetLangs == "" {
		return nil
	}
	parts := strings.Split(u.TargetLangs, ",")
	langs := make([]string, 0, len(parts))
	for _, p := range parts {
		if lang := NormalizeLang(p); lang != "" {
			langs = append(langs, lang)
		}
	}
	return langs
}

// SetTargetLangs stores the given languages, normalized and deduplicated.
func (u *User) SetTargetLangs(langs []string) {
	seen := make(map[string]bool, len(langs))
	kept := make([]string, 0, len(langs))
	for _, l := range langs {
		lang := NormalizeLang(l)
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		kept = append(kept, lang)
	}
	u.TargetLangs = strings.Join(kept, ",")
}
