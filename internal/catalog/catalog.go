// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package catalog holds the text of the verification pages. Defaults are
// embedded; operators can replace individual messages, such as the server
// rules, with a TOML file of their own.
package catalog

import (
	"embed"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed messages/*.toml
var messageFS embed.FS

const defaultFile = "messages/active.en.toml"

var (
	current     atomic.Pointer[i18n.Localizer]
	loadDefault sync.Once
)

// Load builds the catalog from the embedded defaults and, when overrides is
// not empty, the messages of that file on top. Messages missing from the
// override file keep their default text.
func Load(overrides string) error {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	if _, err := bundle.LoadMessageFileFS(messageFS, defaultFile); err != nil {
		return fmt.Errorf("loading default messages: %w", err)
	}

	if overrides != "" {
		buf, err := os.ReadFile(overrides)
		if err != nil {
			return fmt.Errorf("reading messages file: %w", err)
		}
		// The file name carries the language for go-i18n; overrides are
		// always English.
		if _, err := bundle.ParseMessageFileBytes(buf, "overrides.en.toml"); err != nil {
			return fmt.Errorf("parsing messages file %s: %w", overrides, err)
		}
	}

	current.Store(i18n.NewLocalizer(bundle, language.English.String()))
	return nil
}

// T returns the message text for id. Unknown IDs are returned unchanged.
func T(id string) string {
	return TData(id, nil)
}

// TData returns the message text for id with data applied to its template.
func TData(id string, data map[string]any) string {
	localizer := localizer()
	if localizer == nil {
		return id
	}
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		return id
	}
	return msg
}

func localizer() *i18n.Localizer {
	if l := current.Load(); l != nil {
		return l
	}
	loadDefault.Do(func() {
		if current.Load() == nil {
			_ = Load("")
		}
	})
	return current.Load()
}
