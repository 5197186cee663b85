package report

import "strings"

// Bucket is a normalized work status.
type Bucket string

const (
	Completed      Bucket = "Completed"
	InProgress     Bucket = "In-Progress"
	TenderStage    Bucket = "Tender-Stage"
	EstimatedStage Bucket = "Estimated-Stage"
	NotStarted     Bucket = "Not-Started"
	NoStatus       Bucket = "No-Status"
)

// Buckets lists every bucket in output order.
var Buckets = []Bucket{Completed, InProgress, TenderStage, EstimatedStage, NotStarted, NoStatus}

// statusSpellings lists every known spelling, English and Marathi, of each
// bucket. English spellings are matched case-insensitively.
var statusSpellings = []struct {
	bucket    Bucket
	spellings []string
}{
	{Completed, []string{"पूर्ण", "Completed"}},
	{InProgress, []string{"प्रगतीत", "Inprogress", "In Progress", "Processing", "Current", "चालू", "Incomplete", "अपूर्ण"}},
	{TenderStage, []string{"Tender Stage", "निविदा स्तर"}},
	{EstimatedStage, []string{"Estimated Stage", "अंदाजपत्रकिय स्थर", "अंदाजपत्रकीय स्तर"}},
	{NotStarted, []string{"Not Started", "सुरु न झालेली", "सुरू न झालेली", "सुरू करणे"}},
}

var statusBuckets = func() map[string]Bucket {
	m := make(map[string]Bucket)
	for _, e := range statusSpellings {
		for _, s := range e.spellings {
			m[normalizeStatus(s)] = e.bucket
		}
	}
	return m
}()

func normalizeStatus(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Classify maps a raw status string to its bucket. Unknown or empty strings
// fall into NoStatus.
func Classify(status string) Bucket {
	if b, ok := statusBuckets[normalizeStatus(status)]; ok {
		return b
	}
	return NoStatus
}
