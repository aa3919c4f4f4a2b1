package console

import (
	"strings"

	"github.com/roach88/qsync/internal/api"
)

func matches(term string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// FilterDoctors keeps the doctors whose name, email or speciality title
// contains term, ignoring case. An empty term keeps everything.
func FilterDoctors(doctors []api.Doctor, term string) []api.Doctor {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return doctors
	}
	out := make([]api.Doctor, 0, len(doctors))
	for _, d := range doctors {
		if matches(term, d.FullName(), d.Email, d.Speciality.Title) {
			out = append(out, d)
		}
	}
	return out
}

// FilterPatients keeps the patients whose name, email or phone number
// contains term, ignoring case.
func FilterPatients(patients []api.Patient, term string) []api.Patient {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return patients
	}
	out := make([]api.Patient, 0, len(patients))
	for _, p := range patients {
		if matches(term, p.Name+" "+p.LastName, p.Email, p.PhoneNumber) {
			out = append(out, p)
		}
	}
	return out
}
