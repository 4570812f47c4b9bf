package utils

// SplitText cuts text into windows of at most chunkSize runes, each
// window sharing its first overlap runes with the tail of the previous
// one so embeddings keep context across the boundary. Rune slicing
// keeps multi-byte characters intact.
func SplitText(text string, chunkSize int, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	step := chunkSize - overlap
	if step <= 0 {
		// overlap >= chunkSize would loop forever
		step = chunkSize
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}
