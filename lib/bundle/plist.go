// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"fmt"
	"os"
	"slices"

	"howett.net/plist"
)

// PlistPatch is the set of Info.plist edits applied to the packaging
// tool's output.
type PlistPatch struct {
	DisplayName      string
	BundleName       string
	BundleIdentifier string
	URLScheme        string

	// Agent sets LSUIElement so the application runs without a Dock
	// icon.
	Agent bool
}

const (
	keyDisplayName = "CFBundleDisplayName"
	keyBundleName  = "CFBundleName"
	keyAgent       = "LSUIElement"
	keyURLTypes    = "CFBundleURLTypes"
	keyURLName     = "CFBundleURLName"
	keyURLSchemes  = "CFBundleURLSchemes"
)

// ReadPlist decodes the property list at path and reports its on-disk
// format.
func ReadPlist(path string) (map[string]any, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, plist.InvalidFormat, err
	}
	values := map[string]any{}
	format, err := plist.Unmarshal(data, &values)
	if err != nil {
		return nil, plist.InvalidFormat, fmt.Errorf("decoding %s: %w", path, err)
	}
	return values, format, nil
}

// PatchInfoPlist applies patch to the property list at path, keeping
// its format and every key the patch does not name.
func PatchInfoPlist(path string, patch PlistPatch) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("patching metadata: %w", err)
	}
	values, format, err := ReadPlist(path)
	if err != nil {
		return fmt.Errorf("patching metadata: %w", err)
	}

	patch.apply(values)

	encoded, err := plist.MarshalIndent(values, format, "\t")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, encoded, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (p PlistPatch) apply(values map[string]any) {
	if p.DisplayName != "" {
		values[keyDisplayName] = p.DisplayName
	}
	if p.BundleName != "" {
		values[keyBundleName] = p.BundleName
	}
	if p.Agent {
		values[keyAgent] = true
	}
	if p.URLScheme == "" {
		return
	}

	// Merge into an existing entry for this bundle identifier instead
	// of appending, so reapplying the patch adds nothing.
	urlTypes, _ := values[keyURLTypes].([]any)
	for _, entry := range urlTypes {
		urlType, ok := entry.(map[string]any)
		if !ok || urlType[keyURLName] != p.BundleIdentifier {
			continue
		}
		schemes := stringList(urlType[keyURLSchemes])
		if !slices.Contains(schemes, p.URLScheme) {
			schemes = append(schemes, p.URLScheme)
		}
		urlType[keyURLSchemes] = anyList(schemes)
		values[keyURLTypes] = urlTypes
		return
	}
	values[keyURLTypes] = append(urlTypes, map[string]any{
		keyURLName:    p.BundleIdentifier,
		keyURLSchemes: []any{p.URLScheme},
	})
}

// Applied reports whether values already carry every edit of the
// patch.
func (p PlistPatch) Applied(values map[string]any) bool {
	if p.DisplayName != "" && values[keyDisplayName] != p.DisplayName {
		return false
	}
	if p.BundleName != "" && values[keyBundleName] != p.BundleName {
		return false
	}
	if p.Agent && values[keyAgent] != true {
		return false
	}
	if p.URLScheme == "" {
		return true
	}
	urlTypes, _ := values[keyURLTypes].([]any)
	for _, entry := range urlTypes {
		urlType, ok := entry.(map[string]any)
		if ok && urlType[keyURLName] == p.BundleIdentifier && slices.Contains(stringList(urlType[keyURLSchemes]), p.URLScheme) {
			return true
		}
	}
	return false
}

func stringList(value any) []string {
	items, _ := value.([]any)
	var result []string
	for _, item := range items {
		if text, ok := item.(string); ok {
			result = append(result, text)
		}
	}
	return result
}

func anyList(values []string) []any {
	result := make([]any, len(values))
	for index, value := range values {
		result[index] = value
	}
	return result
}
