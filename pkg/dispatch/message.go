package dispatch

import (
	"fmt"
	"strings"

	"github.com/ursa-watch/ursa/pkg/analyzer"
	"github.com/ursa-watch/ursa/pkg/messages"
)

// BuildCallMessage renders the script read to the emergency operator.
func BuildCallMessage(t messages.Threat, a analyzer.Assessment, address string, nearbyCameras int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "This is an automated alert from the URSA neighborhood camera network. ")
	fmt.Fprintf(&b, "%s severity incident: %s near %s. ", a.Severity, t.Details.Description, address)
	fmt.Fprintf(&b, "Detection confidence %.0f percent on camera %s.", t.Confidence*100, t.CameraID)

	if t.Details.MovingAcrossArea {
		fmt.Fprintf(&b, " The subject has been tracked across %d cameras and is moving through the area.", t.Details.CameraCount)
	}
	if nearbyCameras > 0 {
		fmt.Fprintf(&b, " %d additional cameras cover the surrounding blocks.", nearbyCameras)
	}
	return b.String()
}

// BuildCommunityMessage renders the text sent to nearby members.
func BuildCommunityMessage(t messages.Threat, a analyzer.Assessment, address, animalControlNumber string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "URSA alert [%s]: %s near %s.", a.Severity, t.Details.Description, address)

	switch a.Category {
	case messages.CategoryFire:
		b.WriteString(" If you see smoke or flame, leave the area and call 911.")
	case messages.CategoryLostPet:
		fmt.Fprintf(&b, " If you can safely approach, contact animal control at %s.", animalControlNumber)
	case messages.CategoryAbnormality:
		b.WriteString(" Keep children and pets indoors until the animal moves on.")
	default:
		b.WriteString(" Do not confront anyone; report what you see from indoors.")
	}

	if len(a.RecommendedActions) > 0 {
		fmt.Fprintf(&b, " %s.", a.RecommendedActions[0])
	}
	return b.String()
}
