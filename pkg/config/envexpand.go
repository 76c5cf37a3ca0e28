package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in overlay content using Go
// template syntax: {{.SLACK_CHANNEL_ID}} becomes the variable's value.
// The {{.VAR}} form is used instead of $VAR so literal dollar signs in
// prompts and shell snippets survive untouched. Missing variables expand
// to the empty string; validation catches required fields left empty.
// Malformed templates pass the original bytes through so the YAML parser
// can produce the clearer error.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("overlay").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		if key, value, ok := strings.Cut(env, "="); ok {
			envMap[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}
	return buf.Bytes()
}
