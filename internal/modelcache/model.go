// SPDX-License-Identifier: MPL-2.0

package modelcache

import (
	"fmt"
	"strings"
)

type (
	// ModelID identifies a model in the registry, e.g.
	// "sentence-transformers/all-MiniLM-L6-v2".
	ModelID string

	// KnownModel describes a model the warmer knows how to fetch: the exact
	// file set a complete snapshot needs and the embedding dimensionality
	// the snapshot's configuration must declare.
	KnownModel struct {
		ID        ModelID
		Dimension int
		Files     []string
	}
)

// knownModels is the table of models the warmer can fetch. Entries list
// every file a sentence-transformers loader touches, so a warmed snapshot
// works with no registry access at runtime.
var knownModels = map[ModelID]KnownModel{
	"sentence-transformers/all-MiniLM-L6-v2": {
		ID:        "sentence-transformers/all-MiniLM-L6-v2",
		Dimension: 384,
		Files: []string{
			"config.json",
			"config_sentence_transformers.json",
			"model.safetensors",
			"modules.json",
			"sentence_bert_config.json",
			"special_tokens_map.json",
			"tokenizer.json",
			"tokenizer_config.json",
			"vocab.txt",
			"1_Pooling/config.json",
		},
	},
}

// defaultOwner is the registry namespace assumed for bare model names.
// Sentence-transformers loaders accept "all-MiniLM-L6-v2" and supply this
// owner themselves, so recipes may use either form.
const defaultOwner = "sentence-transformers"

// Normalize returns the canonical <owner>/<name> form of the id, applying
// the default owner to bare names.
func (id ModelID) Normalize() ModelID {
	if id == "" || strings.Contains(string(id), "/") {
		return id
	}
	return ModelID(defaultOwner + "/" + string(id))
}

// Lookup returns the known-model entry for id. Bare names resolve under the
// default owner.
func Lookup(id ModelID) (KnownModel, error) {
	m, ok := knownModels[id.Normalize()]
	if !ok {
		return KnownModel{}, fmt.Errorf("unknown model %q (known: %s)", id, strings.Join(knownModelIDs(), ", "))
	}
	return m, nil
}

func knownModelIDs() []string {
	ids := make([]string, 0, len(knownModels))
	for id := range knownModels {
		ids = append(ids, string(id))
	}
	return ids
}

// DirName returns the cache directory name for a model, with the registry
// namespace separator flattened so the whole id stays a single path element.
func (id ModelID) DirName() string {
	return strings.ReplaceAll(string(id), "/", "--")
}

// Validate reports whether the id, after normalization, has the registry's
// <owner>/<name> shape.
func (id ModelID) Validate() error {
	parts := strings.Split(string(id.Normalize()), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("model id %q must have the form <owner>/<name>", id)
	}
	return nil
}
