package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
	s2smock "github.com/MrWong99/voxdesk/pkg/provider/s2s/mock"
	"github.com/MrWong99/voxdesk/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxdesk/pkg/provider/stt/mock"
	"github.com/MrWong99/voxdesk/pkg/provider/translate"
	translatemock "github.com/MrWong99/voxdesk/pkg/provider/translate/mock"
	"github.com/MrWong99/voxdesk/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxdesk/pkg/provider/tts/mock"
)

func TestRegistry_CreatePassesEntry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var got config.ProviderEntry
	reg.RegisterSTT("mock", func(e config.ProviderEntry) (stt.Provider, error) {
		got = e
		return &sttmock.Provider{Text: "ok"}, nil
	})

	entry := config.ProviderEntry{Name: "mock", APIKey: "k", Model: "m"}
	p, err := reg.CreateSTT(entry)
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p == nil {
		t.Fatal("CreateSTT returned nil provider")
	}
	if got.APIKey != "k" || got.Model != "m" {
		t.Errorf("factory saw %+v", got)
	}
}

func TestRegistry_AllKinds(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterS2S("mock", func(config.ProviderEntry) (s2s.Provider, error) { return &s2smock.Provider{}, nil })
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })
	reg.RegisterTranslate("mock", func(config.ProviderEntry) (translate.Provider, error) { return &translatemock.Provider{}, nil })

	e := config.ProviderEntry{Name: "mock"}
	if _, err := reg.CreateS2S(e); err != nil {
		t.Errorf("CreateS2S: %v", err)
	}
	if _, err := reg.CreateTTS(e); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
	if _, err := reg.CreateTranslate(e); err != nil {
		t.Errorf("CreateTranslate: %v", err)
	}
	if _, err := reg.CreateSTT(e); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT on empty kind = %v; want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateTranslate(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v; want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryErrorWrapped(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("missing api key")
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) { return nil, boom })

	_, err := reg.CreateTTS(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v; want wrapped factory error", err)
	}
	if errors.Is(err, config.ErrProviderNotRegistered) {
		t.Error("factory error must not look like a missing registration")
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	noop := func(config.ProviderEntry) (translate.Provider, error) { return &translatemock.Provider{}, nil }
	reg.RegisterTranslate("openai", noop)
	reg.RegisterTranslate("anthropic", noop)
	reg.RegisterTranslate("gemini", noop)

	if got, want := reg.Names("translate"), []string{"anthropic", "gemini", "openai"}; !slices.Equal(got, want) {
		t.Errorf("Names(translate) = %v; want %v", got, want)
	}
	if got := reg.Names("stt"); len(got) != 0 {
		t.Errorf("Names(stt) = %v; want empty", got)
	}
	if got := reg.Names("bogus"); got != nil {
		t.Errorf("Names(bogus) = %v; want nil", got)
	}
}
