package delivery

import (
	"fmt"
	"strings"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// BuildMessage renders the subject and body for an intent. Channel
// adapters receive plain text; provider-specific formatting stays
// behind the adapter.
func BuildMessage(intent *domain.NotificationIntent) (subject, body string) {
	event := intent.Event

	title := event.Title
	if title == "" {
		title = event.Key.ID
	}

	switch event.Kind {
	case domain.EventKindJob:
		subject = fmt.Sprintf("New job opportunity: %s", title)
	case domain.EventKindInternship:
		subject = fmt.Sprintf("New internship opportunity: %s", title)
	case domain.EventKindCertificationDeadline:
		if intent.Priority == domain.PriorityHigh {
			subject = fmt.Sprintf("Deadline approaching: %s", title)
		} else {
			subject = fmt.Sprintf("Certification deadline: %s", title)
		}
	default:
		subject = title
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	if event.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", event.Location)
	}
	if len(event.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(event.Skills, ", "))
	}
	if event.Deadline != nil {
		fmt.Fprintf(&b, "Deadline: %s\n", event.Deadline.Format("02 Jan 2006"))
	}
	fmt.Fprintf(&b, "Matched on: %s\n", strings.Join(intent.ReasonTags, ", "))

	return subject, b.String()
}
