package roster

// chunkLines joins lines with newlines into messages no longer than limit
// characters each, packing greedily in order.
//
// A single line longer than the limit still produces its own chunk so no
// entry is ever dropped.
func chunkLines(lines []string, limit int) []string {
	if len(lines) == 0 {
		return nil
	}

	chunks := make([]string, 0, 1)
	current := ""
	for _, line := range lines {
		if current == "" {
			current = line
			continue
		}

		if len(current)+len(line)+1 > limit {
			chunks = append(chunks, current)
			current = line
			continue
		}

		current += "\n" + line
	}

	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}
