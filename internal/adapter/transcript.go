package adapter

import "github.com/foxseedlab/wwdcsync/internal/repository"

type transcriptDocument struct {
	Transcript  loose[string]             `json:"transcript"`
	Annotations looseArray[loose[string]] `json:"annotations"`
	Timecodes   looseArray[looseFloat]    `json:"timecodes"`
}

// DecodeTranscript pairs annotations with timecodes by position. An index that
// only one of the arrays covers, or whose entry in either array has the wrong
// type, is dropped. The result is not yet attached to a session.
func DecodeTranscript(data []byte) (repository.Transcript, error) {
	var doc transcriptDocument
	if err := decode(data, &doc, "transcript"); err != nil {
		return repository.Transcript{}, err
	}
	n := min(len(doc.Annotations.items), len(doc.Timecodes.items))
	annotations := make([]string, 0, n)
	timecodes := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		text, tc := doc.Annotations.items[i], doc.Timecodes.items[i]
		if !text.set || !tc.set {
			continue
		}
		annotations = append(annotations, text.value)
		timecodes = append(timecodes, tc.value)
	}
	return AdaptTranscript(doc.Transcript.or(""), annotations, timecodes), nil
}

func AdaptTranscript(fullText string, annotations []string, timecodes []float64) repository.Transcript {
	n := min(len(annotations), len(timecodes))
	t := repository.Transcript{
		FullText: fullText,
		Lines:    make([]repository.TranscriptLine, 0, n),
	}
	for i := 0; i < n; i++ {
		t.Lines = append(t.Lines, repository.TranscriptLine{
			Position: i,
			Timecode: timecodes[i],
			Text:     annotations[i],
		})
	}
	return t
}
