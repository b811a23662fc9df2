package service

import "github.com/sakif/snippet-organizer/internal/codec"

// meetingNotes is the starter template a brand-new library is seeded with.
const meetingNotes = `# Meeting Notes Template

## Meeting Information
- **Date**: [Date]
- **Time**: [Time]
- **Location**: [Location]
- **Attendees**: [Names]

## Agenda
1. [Topic 1]
2. [Topic 2]
3. [Topic 3]

## Discussion Points
*

## Action Items
- [ ] [Task 1] - Assigned to: [Name]
- [ ] [Task 2] - Assigned to: [Name]
- [ ] [Task 3] - Assigned to: [Name]

## Next Meeting
- **Date**: [Date]
- **Time**: [Time]
- **Location**: [Location]`

func defaultSnippets() []codec.Proposed {
	return []codec.Proposed{{
		Label:      "Meeting Notes",
		Content:    meetingNotes,
		TagLabels:  []string{"template", "business"},
		IsMarkdown: true,
		IsTemplate: true,
	}}
}
