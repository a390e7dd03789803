// Package translation implements the per-target-language translation
// cache. A fully-cached multi-language request issues zero external calls;
// a partial miss translates only the missing languages, in one batched
// call.
package translation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/example/lingobot/internal/ai"
	"github.com/example/lingobot/internal/progress"
	"github.com/example/lingobot/pkg/models"
)

// Validation sentinels.
var (
	ErrEmptyText     = errors.New("phrase text must not be blank")
	ErrNoTargetLangs = errors.New("at least one target language is required")
)

// PhraseStore is the slice of phrase persistence the service needs.
type PhraseStore interface {
	GetOrCreate(ctx context.Context, text, sourceLang string) (*models.Phrase, bool, error)
	IncrementSearchCount(ctx context.Context, id int64) error
}

// TranslationStore is the cache-entry persistence.
type TranslationStore interface {
	GetForPhrase(ctx context.Context, phraseID int64, targetLangs []string) (map[string]models.TranslationRecord, error)
	Upsert(ctx context.Context, record *models.TranslationRecord) error
}

// ProgressStore creates the learner's progress record on first lookup.
type ProgressStore interface {
	CreateIfAbsent(ctx context.Context, p *models.LearningProgress) (bool, error)
}

// UserStore tracks the learner's search counter.
type UserStore interface {
	IncrementSearchCount(ctx context.Context, id int64) error
}

// Translator is the external generative translator, called only for cache
// misses.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang string, targetLangs []string) (*ai.TranslationResult, error)
}

// Result is the outcome of one lookup. When the external translator failed
// but some languages were served from the cache, Translations holds the
// cached subset, Missing notes the failed languages and Err carries the
// translator error; the lookup itself still succeeds.
type Result struct {
	PhraseID     int64
	Phrase       *models.Phrase
	Translations map[string]models.TranslationPayload
	Status       map[string]models.CacheStatus
	Missing      map[string]string
	Err          error
}

// Service orchestrates phrase resolution, cache lookups and external
// translation.
type Service struct {
	phrases      PhraseStore
	translations TranslationStore
	progressRepo ProgressStore
	users        UserStore
	translator   Translator
	logger       *logrus.Logger
	now          func() time.Time
}

// NewService wires the translation cache.
func NewService(
	phrases PhraseStore,
	translations TranslationStore,
	progressRepo ProgressStore,
	users UserStore,
	translator Translator,
	logger *logrus.Logger,
) *Service {
	return &Service{
		phrases:      phrases,
		translations: translations,
		progressRepo: progressRepo,
		users:        users,
		translator:   translator,
		logger:       logger,
		now:          time.Now,
	}
}

// Resolve looks up translations of text into every requested target
// language, consulting the cache first and the external translator only
// for the miss set. It also maintains the side effects of a lookup: search
// counters and the learner's initial progress record.
func (s *Service) Resolve(ctx context.Context, userID int64, text, sourceLang string, targetLangs []string) (*Result, error) {
	if models.NormalizePhraseText(text) == "" {
		return nil, ErrEmptyText
	}
	if len(targetLangs) == 0 {
		return nil, ErrNoTargetLangs
	}
	langs := lo.Uniq(lo.Map(targetLangs, func(l string, _ int) string {
		return models.NormalizeLang(l)
	}))

	phrase, created, err := s.phrases.GetOrCreate(ctx, text, sourceLang)
	if err != nil {
		return nil, fmt.Errorf("resolve phrase: %w", err)
	}

	result := &Result{
		PhraseID:     phrase.ID,
		Phrase:       phrase,
		Translations: make(map[string]models.TranslationPayload, len(langs)),
		Status:       make(map[string]models.CacheStatus, len(langs)),
		Missing:      map[string]string{},
	}

	cached, err := s.translations.GetForPhrase(ctx, phrase.ID, langs)
	if err != nil {
		return nil, err
	}

	var misses []string
	for _, lang := range langs {
		record, ok := cached[lang]
		if !ok {
			misses = append(misses, lang)
			continue
		}
		payload, err := models.UnmarshalPayload(record.Payload)
		if err != nil {
			// A corrupt entry is re-translated rather than served.
			s.logger.WithError(err).WithFields(logrus.Fields{
				"phrase_id": phrase.ID,
				"lang":      lang,
			}).Warn("discarding corrupt cache entry")
			misses = append(misses, lang)
			continue
		}
		result.Translations[lang] = payload
		result.Status[lang] = models.CacheStatusCached
	}

	// The performance invariant: no external call when everything was
	// served from the cache.
	if len(misses) > 0 {
		if err := s.translateMisses(ctx, phrase, misses, result); err != nil {
			return nil, err
		}
	}

	s.recordLookup(ctx, userID, phrase, created)
	return result, nil
}

// translateMisses performs the single batched external call and persists
// each fresh translation. On total failure it degrades to a partial result
// when anything was cached, or fails hard when nothing was.
func (s *Service) translateMisses(ctx context.Context, phrase *models.Phrase, misses []string, result *Result) error {
	fresh, err := s.translator.Translate(ctx, phrase.Text, phrase.SourceLang, misses)
	if err != nil {
		if len(result.Translations) == 0 {
			return fmt.Errorf("translate %q: %w", phrase.Text, err)
		}
		for _, lang := range misses {
			result.Missing[lang] = err.Error()
		}
		result.Err = err
		s.logger.WithError(err).WithFields(logrus.Fields{
			"phrase_id": phrase.ID,
			"missing":   misses,
		}).Warn("translator failed; serving cached subset")
		return nil
	}

	for _, lang := range misses {
		payload := fresh.ByLang[lang]
		raw, err := models.MarshalPayload(payload)
		if err != nil {
			return err
		}
		record := &models.TranslationRecord{
			PhraseID:   phrase.ID,
			TargetLang: lang,
			Payload:    raw,
			ModelID:    fresh.ModelID,
			Usage:      fresh.Usage,
		}
		if err := s.translations.Upsert(ctx, record); err != nil {
			return err
		}
		result.Translations[lang] = payload
		result.Status[lang] = models.CacheStatusFresh
	}
	return nil
}

// recordLookup applies the lookup side effects. Failures here are logged,
// not returned: the learner already has their translations.
func (s *Service) recordLookup(ctx context.Context, userID int64, phrase *models.Phrase, created bool) {
	if !created {
		if err := s.phrases.IncrementSearchCount(ctx, phrase.ID); err != nil {
			s.logger.WithError(err).WithField("phrase_id", phrase.ID).Error("increment phrase search count")
		}
	}
	if userID == 0 {
		return
	}
	if err := s.users.IncrementSearchCount(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("increment user search count")
	}
	if phrase.Quizzable {
		record := progress.NewRecord(userID, phrase.ID, s.now())
		if _, err := s.progressRepo.CreateIfAbsent(ctx, &record); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"user_id":   userID,
				"phrase_id": phrase.ID,
			}).Error("create learning progress")
		}
	}
}
