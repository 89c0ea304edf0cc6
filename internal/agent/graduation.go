package agent

import (
	"context"
	"fmt"
	"strings"

	"campusai/pkg/ai"
)

// auditGuidanceMessage is returned when no transcript images are available.
const auditGuidanceMessage = "To run a graduation audit, please upload your transcript images in the profile panel first."

// auditGraduation analyzes the user's transcript images against the
// knowledge base. With no images uploaded it returns fixed guidance and
// never calls the model.
func (a *Agent) auditGraduation(ctx context.Context, session *Session) (string, error) {
	if len(session.Images) == 0 {
		return auditGuidanceMessage, nil
	}

	var b strings.Builder
	b.WriteString("Analyze the attached transcript images and audit the student's graduation requirements.\n")
	profile := session.Profile
	if profile.Major != "" {
		fmt.Fprintf(&b, "Student: %s, year %d.\n", profile.Major, profile.Year)
	}
	b.WriteString("\n[Reference documents]\n")
	b.WriteString(a.kb.Text())
	b.WriteString("\n\nWrite a Markdown report in this order: overall verdict, per-category completion table, missing courses, advice.")

	images := make([]ai.ImagePart, 0, len(session.Images))
	for _, img := range session.Images {
		images = append(images, ai.ImagePart{MIMEType: img.MIMEType, Data: img.Data})
	}

	return ai.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return a.vision.GenerateVision(ctx, b.String(), images)
	})
}
