package model

// Result records one finished exam attempt. The results collection is
// append-only; at most one Result per username should exist, enforced
// by a pre-submit check rather than a store constraint.
type Result struct {
	Username          string           `json:"username"`
	TotalScorePercent int              `json:"totalScorePercent"`
	SectionScores     map[Category]int `json:"sectionScores"`
	Timestamp         int64            `json:"timestamp"`
}

// EncryptedBlob is the stored form of the results array: a random IV
// and base64 AES-GCM ciphertext. The shape matches what older clients
// wrote, so either side can decrypt the other's blobs.
type EncryptedBlob struct {
	IV   []int  `json:"iv"`
	Data string `json:"data"`
}

// ResultsDoc wraps the blob inside the results/all document.
type ResultsDoc struct {
	Data EncryptedBlob `json:"data"`
}
