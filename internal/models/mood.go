package models

// Moods is the fixed vocabulary the client's mood picker offers. An entry
// may omit the mood entirely; a non-empty mood must be one of these.
var Moods = []string{
	"grateful",
	"happy",
	"calm",
	"excited",
	"thoughtful",
	"anxious",
	"sad",
	"angry",
}

func IsValidMood(mood string) bool {
	for _, m := range Moods {
		if m == mood {
			return true
		}
	}
	return false
}
