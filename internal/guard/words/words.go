// Package words holds the magic-word list used by the verification
// challenge. One word is drawn per session; the user must echo it in the
// bot's private chat to prove they read the rules.
package words

import (
	"fmt"
	"math/rand"

	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed words.yaml
var rawList []byte

var words []string

func init() {
	var doc struct {
		Words []string `yaml:"words"`
	}
	if err := yaml.Unmarshal(rawList, &doc); err != nil {
		panic(fmt.Sprintf("words: parse embedded list: %v", err))
	}
	if len(doc.Words) == 0 {
		panic("words: embedded list is empty")
	}
	words = doc.Words
}

// All returns the full word list.
func All() []string {
	return words
}

// Random draws one word uniformly from the list.
func Random() string {
	return words[rand.Intn(len(words))]
}
