// nolint: gochecknoglobals
package idgenerator

import gonanoid "github.com/matoous/go-nanoid/v2"

const (
	TaskIDSuffixLength = 8
	NodeIDSuffixLength = 5
)

// alphabet used in ID generation.
var alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// TaskIDSuffix makes a diagnosable task ID globally unique.
func TaskIDSuffix() string {
	return Random(TaskIDSuffixLength)
}

func Random(length int) string {
	return gonanoid.MustGenerate(alphabet, length)
}
