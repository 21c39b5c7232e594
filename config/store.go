package config

import (
	"fmt"
	"sync"
	"time"

	"go.aimuz.me/voxd/internal/types"
)

// Settings is the runtime-mutable slice of configuration. Values handed
// out are copies; an operation that captured a snapshot keeps behaving
// per that snapshot even if the store is updated underneath it.
type Settings struct {
	DisplayName         string
	Language            string
	WakePhrase          string
	WakeVariants        []string
	ConversationMode    bool
	ConversationTimeout time.Duration
	BargeInThreshold    float64
	BargeInFrames       int
	BargeInCooldown     time.Duration
	ChunkGuard          time.Duration
	EchoGuard           time.Duration
}

func (s Settings) clone() Settings {
	out := s
	out.WakeVariants = append([]string(nil), s.WakeVariants...)
	return out
}

// Store guards the runtime settings with copy-on-write snapshots and
// notifies listeners on every change.
type Store struct {
	mu        sync.RWMutex
	cfg       *Config
	cur       Settings
	listeners []func(Settings)
}

// NewStore derives the initial settings from cfg.
func NewStore(cfg *Config) *Store {
	lang := cfg.Languages[0]
	phrase := cfg.WakePhrases[lang]
	return &Store{
		cfg: cfg,
		cur: Settings{
			DisplayName:         cfg.DisplayName,
			Language:            lang,
			WakePhrase:          phrase,
			WakeVariants:        append([]string(nil), cfg.WakeVariants[phrase]...),
			ConversationMode:    cfg.ConversationMode,
			ConversationTimeout: cfg.ConversationTimeout,
			BargeInThreshold:    cfg.BargeInThreshold,
			BargeInFrames:       cfg.BargeInFrames,
			BargeInCooldown:     cfg.BargeInCooldown,
			ChunkGuard:          cfg.ChunkGuard,
			EchoGuard:           cfg.EchoGuard,
		},
	}
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

// OnChange registers fn to run after every successful update. Listeners
// are invoked outside the store lock with a settings copy.
func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Update applies fn to a copy of the settings and installs the result.
func (s *Store) Update(fn func(*Settings)) Settings {
	s.mu.Lock()
	next := s.cur.clone()
	fn(&next)
	s.cur = next
	listeners := append(([]func(Settings))(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(next.clone())
	}
	return next
}

// SetLanguage switches the active language, swapping in that language's
// wake phrase and variant table.
func (s *Store) SetLanguage(lang string) (Settings, error) {
	if !s.cfg.HasLanguage(lang) {
		return Settings{}, fmt.Errorf("language %q not configured", lang)
	}
	next := s.Update(func(st *Settings) {
		st.Language = lang
		st.WakePhrase = s.cfg.WakePhrases[lang]
		st.WakeVariants = append([]string(nil), s.cfg.WakeVariants[st.WakePhrase]...)
	})
	return next, nil
}

// Payload returns the externally visible settings slice.
func (s *Store) Payload() types.SettingsPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := types.SettingsPayload{DisplayName: s.cur.DisplayName}
	if len(s.cfg.Languages) > 0 {
		p.WakePhrasePrimary = s.cfg.WakePhrases[s.cfg.Languages[0]]
	}
	if len(s.cfg.Languages) > 1 {
		p.WakePhraseSecondary = s.cfg.WakePhrases[s.cfg.Languages[1]]
	}
	return p
}

// ApplyPayload installs user-editable settings from p. Empty fields
// keep their current value. The wake phrase and variant table of the
// active language are refreshed when edited.
func (s *Store) ApplyPayload(p types.SettingsPayload) Settings {
	return s.Update(func(st *Settings) {
		if p.DisplayName != "" {
			st.DisplayName = p.DisplayName
		}
		if p.WakePhrasePrimary != "" && len(s.cfg.Languages) > 0 {
			s.cfg.WakePhrases[s.cfg.Languages[0]] = p.WakePhrasePrimary
		}
		if p.WakePhraseSecondary != "" && len(s.cfg.Languages) > 1 {
			s.cfg.WakePhrases[s.cfg.Languages[1]] = p.WakePhraseSecondary
		}
		st.WakePhrase = s.cfg.WakePhrases[st.Language]
		st.WakeVariants = append([]string(nil), s.cfg.WakeVariants[st.WakePhrase]...)
	})
}

// SaveConfig persists the backing configuration, including wake phrase
// edits, to disk.
func (s *Store) SaveConfig() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Save()
}
