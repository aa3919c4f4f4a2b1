package backend

import (
	"github.com/shopspring/decimal"

	"github.com/roach88/qsync/internal/api"
)

// Fixture is the initial state of a Server.
type Fixture struct {
	Admins        []AdminAccount     `json:"admins"`
	Specialities  []api.Speciality   `json:"specialities"`
	Doctors       []api.Doctor       `json:"doctors"`
	Patients      []api.Patient      `json:"patients"`
	Banners       []api.Banner       `json:"banners"`
	Feedbacks     []api.Feedback     `json:"feedbacks"`
	Consultations []api.Consultation `json:"consultations"`
}

// AdminAccount is an admin with its sign-in secret.
type AdminAccount struct {
	api.Admin
	Password  string `json:"password"`
	// Token, when set, is accepted as a bearer token for this admin without
	// signing in.
	Token string `json:"token,omitempty"`
}

// DefaultFixture is a small but complete data set for local runs.
func DefaultFixture() Fixture {
	cardio := api.Speciality{ID: "s1", Title: "Cardiology"}
	derm := api.Speciality{ID: "s2", Title: "Dermatology"}
	fee := decimal.NewFromInt(150)

	ada := api.Doctor{
		ID: "d1", Name: "Ada", LastName: "Okafor", Email: "ada@clinic.test", PhoneNumber: "2348000000001",
		Speciality: api.SpecialityRef{Speciality: cardio}, ConsultationFees: fee,
		PreferredPayoutMethod: "bank", PayoutAccountNumber: "0001", IsApproved: true,
	}
	return Fixture{
		Admins: []AdminAccount{
			{Admin: api.Admin{ID: "a1", Username: "root", Email: "root@console.test"}, Password: "rootroot", Token: "dev-token"},
			{Admin: api.Admin{ID: "a2", Username: "ops", Email: "ops@console.test"}, Password: "opsops"},
		},
		Specialities: []api.Speciality{cardio, derm},
		Doctors: []api.Doctor{
			ada,
			{ID: "d2", Name: "Bola", LastName: "Adeyemi", Email: "bola@clinic.test", Speciality: api.SpecialityRef{Speciality: derm}, ConsultationFees: decimal.NewFromInt(90)},
			{ID: "d3", Name: "Chen", LastName: "Wu", Email: "chen@clinic.test", Speciality: api.SpecialityRef{Speciality: cardio}, ConsultationFees: decimal.NewFromInt(120)},
		},
		Patients: []api.Patient{
			{ID: "p1", Name: "Dayo", Email: "dayo@mail.test", PhoneNumber: "2348000000101", Age: 34},
			{ID: "p2", Name: "Eve", Email: "eve@mail.test", Age: 27},
		},
		Banners: []api.Banner{{ID: "b1", Img: "https://cdn.test/banners/welcome.png"}},
		Feedbacks: []api.Feedback{{
			ID: "f1", Stars: 5, Feedback: "Very helpful", Type: "consultation",
			Doctor:  &api.Person{ID: "d1", Name: "Ada", LastName: "Okafor"},
			Patient: &api.Person{ID: "p1", Name: "Dayo"},
		}},
		Consultations: []api.Consultation{{ID: "c1", Doctor: ada, PayoutStatus: "pending"}},
	}
}
