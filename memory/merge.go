package memory

import "sort"

// mergeScored combines a recency-sourced list and a similarity-sourced
// list into one deduplicated ranking. A shard appearing in both lists is
// represented once with the MAX of the two scores and the source tag
// "both"; equal scores keep the copy with the more recent last_used.
// Output is ordered by score descending, exact ties by timestamp
// descending.
func mergeScored(recency, scored []ScoredShard) []ScoredShard {
	merged := make([]ScoredShard, 0, len(recency)+len(scored))
	byID := make(map[string]int, len(recency)+len(scored))

	for _, list := range [2][]ScoredShard{recency, scored} {
		for _, cand := range list {
			if cand.Shard == nil {
				continue
			}
			pos, seen := byID[cand.Shard.ID]
			if !seen {
				byID[cand.Shard.ID] = len(merged)
				merged = append(merged, cand)
				continue
			}
			merged[pos] = combine(merged[pos], cand)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Shard.Timestamp.After(merged[j].Shard.Timestamp)
	})
	return merged
}

func combine(a, b ScoredShard) ScoredShard {
	out := a
	out.Source = SourceBoth
	switch {
	case b.Score > a.Score:
		out.Shard = b.Shard
		out.Score = b.Score
	case b.Score == a.Score && lastUsedAfter(b.Shard, a.Shard):
		out.Shard = b.Shard
	}
	return out
}
