// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// Stage values accepted in [Options].Stage.
const (
	StageProd  = "prod"
	StageGamma = "gamma"
)

// Options is the per-invocation blob. Every field is optional.
type Options struct {
	// Signing configures the signing and notarization stages. When nil
	// or incomplete, artifacts are left unsigned.
	Signing *SigningOptions `json:"signing,omitempty"`

	// ExtraFeatures enables the gamma feature set without switching
	// the signing profile.
	ExtraFeatures bool `json:"extra_features,omitempty"`

	// OutputBucket is the staging location artifacts are published to.
	// Empty skips publishing.
	OutputBucket string `json:"output_bucket,omitempty"`

	// StageName is prod (default) or gamma.
	StageName string `json:"stage,omitempty"`

	// Headless builds the CLI without the desktop shell.
	Headless bool `json:"headless,omitempty"`

	// DesktopBundle includes the desktop shell in Linux archives.
	DesktopBundle bool `json:"desktop_bundle,omitempty"`

	// ArchiveSigningKey is a credential reference to an Ed25519 key
	// used to sign Linux archives. Empty leaves archives unsigned.
	ArchiveSigningKey string `json:"archive_signing_key,omitempty"`
}

// SigningOptions scopes the signing service and the notarization
// credential.
type SigningOptions struct {
	Bucket             string `json:"bucket"`
	Queue              string `json:"queue,omitempty"`
	AccountID          string `json:"account_id"`
	RoleName           string `json:"role_name"`
	NotarizationSecret string `json:"notarization_secret"`

	// Endpoint overrides the signing service base URL.
	Endpoint string `json:"endpoint,omitempty"`

	// TeamID overrides the project's notarization team.
	TeamID string `json:"team_id,omitempty"`

	// Poll policy. Zero values select the defaults.
	Timeout         Duration `json:"timeout,omitempty"`
	PollInterval    Duration `json:"poll_interval,omitempty"`
	MaxPollInterval Duration `json:"max_poll_interval,omitempty"`
	RetryBudget     int      `json:"retry_budget,omitempty"`
}

// Duration decodes from a time.ParseDuration string ("30m") or a
// number of seconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		parsed, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", text, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds, got %s", data)
	}
	*d = Duration(seconds * float64(time.Second))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ParseOptions strips JSONC comments and trailing commas from data and
// decodes the result. Unknown fields are rejected so a misspelled key
// does not silently disable a stage. Empty input yields zero Options.
func ParseOptions(data []byte) (*Options, error) {
	stripped := jsonc.ToJSON(data)
	options := &Options{}
	if len(bytes.TrimSpace(stripped)) == 0 {
		return options, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(stripped))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("parsing options: %w", err)
	}
	if err := options.validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// ReadOptions reads an options blob from path, or from stdin when path
// is "-". An empty path yields zero Options.
func ReadOptions(path string, stdin io.Reader) (*Options, error) {
	var (
		data []byte
		err  error
	)
	switch path {
	case "":
		return &Options{}, nil
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading options %s: %w", path, err)
	}

	options, err := ParseOptions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return options, nil
}

func (o *Options) validate() error {
	switch o.StageName {
	case "", StageProd, StageGamma:
	default:
		return fmt.Errorf("stage must be %q or %q, got %q", StageProd, StageGamma, o.StageName)
	}
	if o.Signing != nil {
		if o.Signing.Timeout < 0 || o.Signing.PollInterval < 0 || o.Signing.MaxPollInterval < 0 {
			return fmt.Errorf("signing durations must not be negative")
		}
		if o.Signing.RetryBudget < 0 {
			return fmt.Errorf("signing.retry_budget must not be negative")
		}
	}
	return nil
}

// Stage returns the effective stage name.
func (o *Options) Stage() string {
	if o.StageName == "" {
		return StageProd
	}
	return o.StageName
}

// GammaFeatures reports whether packages are compiled with their gamma
// feature.
func (o *Options) GammaFeatures() bool {
	return o.ExtraFeatures || o.Stage() == StageGamma
}

// SigningEnabled reports whether every field the signing stages need is
// present. A partial signing block disables signing; MissingSigning
// names what is absent.
func (o *Options) SigningEnabled() bool {
	return o.Signing != nil && len(o.MissingSigning()) == 0
}

// MissingSigning lists the signing fields that are empty.
func (o *Options) MissingSigning() []string {
	if o.Signing == nil {
		return []string{"signing"}
	}
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"signing.bucket", o.Signing.Bucket},
		{"signing.account_id", o.Signing.AccountID},
		{"signing.role_name", o.Signing.RoleName},
		{"signing.notarization_secret", o.Signing.NotarizationSecret},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}
