package services

// CollectedData holds the structured fields the voice agent extracted during
// the call. It is merged over whatever the payload shape produced.
type CollectedData struct {
	MajorEvents string
	Mood        string
	Insights    string
	ActionItems string
}

func (c *CollectedData) empty() bool {
	return c.MajorEvents == "" && c.Mood == "" && c.Insights == "" && c.ActionItems == ""
}

// ExtractCollectedData looks for the data collection block under
// data_collection, collected_data, analysis.data_collection and
// analysis.data_collection_results, in that order. It returns nil when none
// of them carries a known field.
func ExtractCollectedData(p map[string]any) *CollectedData {
	analysis := object(p, "analysis")
	candidates := []map[string]any{
		object(p, "data_collection"),
		object(p, "collected_data"),
		object(analysis, "data_collection"),
		object(analysis, "data_collection_results"),
	}
	for _, block := range candidates {
		if len(block) == 0 {
			continue
		}
		cd := &CollectedData{
			MajorEvents: textOf(block["major_events"]),
			Mood:        textOf(block["mood"]),
			Insights:    textOf(block["insights"]),
			ActionItems: textOf(block["action_items"]),
		}
		if cd.empty() {
			continue
		}
		return cd
	}
	return nil
}
