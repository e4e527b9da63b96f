package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CoverLetterRequest is the typed payload sent to the text-generation
// collaborator.
type CoverLetterRequest struct {
	Type    string            `json:"type"`
	Context CoverLetterInputs `json:"context"`
}

// CoverLetterInputs summarises the vacancy and applicant for the prompt.
type CoverLetterInputs struct {
	VacancyTitle    string   `json:"vacancy_title"`
	EmployerName    string   `json:"employer_name"`
	Location        string   `json:"location"`
	Requirements    []string `json:"requirements,omitempty"`
	ApplicantName   string   `json:"applicant_name"`
	Tier            string   `json:"tier"`
	Bio             string   `json:"bio,omitempty"`
	Specialisations []string `json:"specialisations,omitempty"`
}

// NewCoverLetterRequest tags the inputs with the request type the
// collaborator dispatches on.
func NewCoverLetterRequest(inputs CoverLetterInputs) CoverLetterRequest {
	return CoverLetterRequest{Type: "cover_letter_generation", Context: inputs}
}

// GenerateCoverLetter renders the prompt and runs it through the model.
func GenerateCoverLetter(ctx context.Context, g Generator, req CoverLetterRequest) (string, error) {
	if req.Type != "cover_letter_generation" {
		return "", fmt.Errorf("unsupported generation request type %q", req.Type)
	}
	if strings.TrimSpace(req.Context.VacancyTitle) == "" {
		return "", errors.New("vacancy title is required")
	}
	if strings.TrimSpace(req.Context.ApplicantName) == "" {
		return "", errors.New("applicant name is required")
	}
	return g.Generate(ctx, buildCoverLetterPrompt(req.Context))
}

func buildCoverLetterPrompt(in CoverLetterInputs) string {
	var b strings.Builder
	b.WriteString("You are helping a UK electrician apply for a job. ")
	b.WriteString("Write a concise, professional cover letter (150-250 words) in the first person. ")
	b.WriteString("No salutation placeholders, no markdown, plain paragraphs only.\n\n")

	fmt.Fprintf(&b, "Vacancy: %s at %s", in.VacancyTitle, in.EmployerName)
	if in.Location != "" {
		fmt.Fprintf(&b, " (%s)", in.Location)
	}
	b.WriteString("\n")
	if len(in.Requirements) > 0 {
		b.WriteString("Key requirements:\n")
		for _, r := range in.Requirements {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	fmt.Fprintf(&b, "\nApplicant: %s, Elec-ID tier %s.\n", in.ApplicantName, in.Tier)
	if in.Bio != "" {
		fmt.Fprintf(&b, "Background: %s\n", in.Bio)
	}
	if len(in.Specialisations) > 0 {
		fmt.Fprintf(&b, "Specialisations: %s\n", strings.Join(in.Specialisations, ", "))
	}

	b.WriteString("\nRespond with the cover letter text only.")
	return b.String()
}
