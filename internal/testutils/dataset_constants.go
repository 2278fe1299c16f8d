package testutils

// Dataset size constants
const (
	// MinimumDocsPerSystem is the fewest documents a system needs for a
	// confidence interval to be computed.
	MinimumDocsPerSystem = 5

	// DefaultDocs is the number of documents generated when none is given.
	DefaultDocs = 20

	// DefaultSegmentsPerDoc is the number of segments in each document.
	DefaultSegmentsPerDoc = 10

	// MaxErrorsPerSegment caps how many errors one rater marks in a segment.
	MaxErrorsPerSegment = 3
)

// Default participants
var (
	DefaultSystems = []string{"sysA", "sysB", "sysC", "Human-ref"}
	DefaultRaters  = []string{"rater1", "rater2", "rater3"}
)

// Labels used by generated ratings.
const (
	NoErrorCategory = "No-error"
	NoErrorSeverity = "No-error"
	HOTWSeverity    = "HOTW-test"
)

// ErrorCategories lists the categories drawn for generated errors. Weights
// favor fluency and accuracy, as real rating campaigns do.
var ErrorCategories = []weightedLabel{
	{"Accuracy/Mistranslation", 30},
	{"Accuracy/Omission", 10},
	{"Accuracy/Addition", 5},
	{"Fluency/Grammar", 20},
	{"Fluency/Spelling", 10},
	{"Fluency/Punctuation", 8},
	{"Terminology/Inappropriate for context", 7},
	{"Style/Awkward", 8},
	{"Non-translation!", 1},
	{"Other", 1},
}

// ErrorSeverities lists the severities drawn for generated errors.
var ErrorSeverities = []weightedLabel{
	{"Minor", 60},
	{"Major", 35},
	{"Critical", 5},
}

type weightedLabel struct {
	Label  string
	Weight int
}
