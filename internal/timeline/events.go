package timeline

import (
	"github.com/trailhound/trailhound/internal/models"
)

// CollectEvents derives timeline events from resolved entities and
// attaches them to the subject. Breach documents become digital_breach
// events; domain registrations become digital_signup events.
func (b *Builder) CollectEvents(subjectID string, resolved []models.ResolvedEntity) int {
	added := 0
	for _, e := range resolved {
		switch e.Type {
		case models.EntityDocument:
			breach := e.Attributes[models.AttrBreach]
			dateStr := e.Attributes["breach_date"]
			if breach == "" || dateStr == "" {
				continue
			}
			date, precision, ok := ParseDate(dateStr)
			if !ok {
				continue
			}
			b.Add(models.TimelineEvent{
				SubjectID:  subjectID,
				Type:       models.EventDigitalBreach,
				Date:       date,
				Precision:  precision,
				Title:      "account exposed in " + breach + " breach",
				Confidence: e.Confidence / 100,
				Sources:    e.Sources,
				Metadata: map[string]string{
					"breach":       breach,
					"data_classes": e.Attributes["data_classes"],
				},
			})
			added++
		case models.EntityDomain:
			created := e.Attributes["created"]
			domain := e.Attributes[models.AttrDomain]
			if created == "" || domain == "" {
				continue
			}
			date, precision, ok := ParseDate(created)
			if !ok {
				continue
			}
			b.Add(models.TimelineEvent{
				SubjectID:  subjectID,
				Type:       models.EventDigitalSignup,
				Date:       date,
				Precision:  precision,
				Title:      "registered domain " + domain,
				Confidence: e.Confidence / 100,
				Sources:    e.Sources,
				Metadata:   map[string]string{"domain": domain},
			})
			added++
		}
	}
	return added
}
