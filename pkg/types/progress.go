package types

type Progress struct {
	Fulfilled int `json:"fulfilled"`
	Needed    int `json:"needed"`
	Percent   int `json:"percent"`
}

type StatusBucket string

const (
	BucketUrgent      StatusBucket = "Urgent"
	BucketLow         StatusBucket = "Low"
	BucketModerate    StatusBucket = "Moderate"
	BucketWellStocked StatusBucket = "WellStocked"
)
