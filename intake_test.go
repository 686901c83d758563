package intake_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/surreyclinic/intake"
	"github.com/surreyclinic/intake/pkg/domain"
)

func TestFacade_Interview(t *testing.T) {
	assistant := intake.New()
	ctx := context.Background()

	turn, err := assistant.StartInterview(ctx, "")
	if err != nil {
		t.Fatalf("StartInterview failed: %v", err)
	}
	if turn.Session.CurrentNodeID != "entry" {
		t.Errorf("expected entry node, got %q", turn.Session.CurrentNodeID)
	}
	if !strings.Contains(turn.Prompt, "health information") {
		t.Errorf("unexpected opening prompt: %q", turn.Prompt)
	}

	turn, err = assistant.Answer(ctx, turn.Session.ID, "yes, that's fine")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if turn.Session.CurrentNodeID != "chief_complaint" {
		t.Errorf("expected chief_complaint after consent, got %q", turn.Session.CurrentNodeID)
	}
	if got, ok := turn.Session.Record.Get("consent"); !ok || got != true {
		t.Errorf("consent not recorded: %v (%v)", got, ok)
	}

	snapshot, err := assistant.Session(ctx, turn.Session.ID)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if snapshot.Turns != 1 {
		t.Errorf("expected 1 turn, got %d", snapshot.Turns)
	}

	if err := assistant.End(ctx, turn.Session.ID, "test over"); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if _, err := assistant.Session(ctx, turn.Session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected session gone after End, got %v", err)
	}
}

func TestFacade_UnknownSpecialty(t *testing.T) {
	assistant := intake.New()

	_, err := assistant.StartInterview(context.Background(), "dermatology")
	if !errors.Is(err, domain.ErrUnknownSpecialty) {
		t.Errorf("expected ErrUnknownSpecialty, got %v", err)
	}
}

func TestFacade_EmergencyEscalates(t *testing.T) {
	assistant := intake.New(intake.WithMaxRepeats(5))
	ctx := context.Background()

	turn, err := assistant.StartInterview(ctx, "")
	if err != nil {
		t.Fatalf("StartInterview failed: %v", err)
	}

	turn, err = assistant.Answer(ctx, turn.Session.ID, "please call an ambulance")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if turn.Session.Status != domain.StatusEscalated {
		t.Errorf("expected escalated status, got %q", turn.Session.Status)
	}

	var alerted bool
	for _, ev := range turn.Events {
		if ev.Type == domain.EventStaffAlert {
			alerted = true
		}
	}
	if !alerted {
		t.Error("expected a staff alert event")
	}
}
