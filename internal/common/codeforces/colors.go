package codeforces

// UnknownColor is returned for ranks missing from the color table, including unrated users.
const UnknownColor = "rgb(0, 0, 0)"

var rankColors = map[string]string{
	"newbie":                    "rgb(128, 128, 128)",
	"pupil":                     "rgb(0, 128, 0)",
	"specialist":                "rgb(3, 168, 158)",
	"expert":                    "rgb(0, 0, 255)",
	"candidate master":          "rgb(170, 0, 170)",
	"master":                    "rgb(255, 140, 0)",
	"international master":      "rgb(255, 140, 0)",
	"grandmaster":               "rgb(255, 0, 0)",
	"international grandmaster": "rgb(255, 0, 0)",
	"legendary grandmaster":     "rgb(255, 0, 0)",
}

// Color maps a rank label to its display color.
func Color(rank string) string {
	if c, ok := rankColors[rank]; ok {
		return c
	}
	return UnknownColor
}
