package api

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PayoutShare is the fraction of a consultation fee paid out to the doctor.
var PayoutShare = decimal.NewFromInt(80).Div(decimal.NewFromInt(100))

// Speciality is a medical speciality offered on the platform.
type Speciality struct {
	ID    string `json:"_id"`
	Title string `json:"title"`
	Logo  string `json:"logo,omitempty"`
}

// SpecialityRef is a doctor's speciality. The backend sends either the bare
// id or the populated object; both decode here.
type SpecialityRef struct {
	Speciality
}

func (r *SpecialityRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = SpecialityRef{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = SpecialityRef{Speciality{ID: id}}
		return nil
	}
	return json.Unmarshal(data, &r.Speciality)
}

func (r SpecialityRef) MarshalJSON() ([]byte, error) {
	if r.Title == "" && r.Logo == "" {
		return json.Marshal(r.ID)
	}
	return json.Marshal(r.Speciality)
}

// Doctor is a registered doctor, approved or pending.
type Doctor struct {
	ID                    string          `json:"_id"`
	Name                  string          `json:"name"`
	LastName              string          `json:"lastName,omitempty"`
	Email                 string          `json:"email"`
	PhoneNumber           string          `json:"phoneNumber,omitempty"`
	Age                   int             `json:"age,omitempty"`
	Speciality            SpecialityRef   `json:"specialityId"`
	RespondTime           string          `json:"respondTime,omitempty"`
	ConsultationFees      decimal.Decimal `json:"consultationFees"`
	PreferredPayoutMethod string          `json:"preferredPayoutMethod,omitempty"`
	PayoutAccountNumber   string          `json:"payoutAccountNumber,omitempty"`
	IsApproved            bool            `json:"isApproved"`
}

// FullName joins first and last name.
func (d Doctor) FullName() string {
	if d.LastName == "" {
		return d.Name
	}
	return d.Name + " " + d.LastName
}

// Patient is a registered patient.
type Patient struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	LastName    string `json:"lastName,omitempty"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Age         int    `json:"age,omitempty"`
}

// Banner is a promotional image shown in the patient app.
type Banner struct {
	ID  string `json:"_id"`
	Img string `json:"img"`
}

// Admin is a console administrator.
type Admin struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// NewAdmin is the body of an admin creation.
type NewAdmin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Person is the populated doctor or patient on a feedback.
type Person struct {
	ID          string `json:"_id,omitempty"`
	Name        string `json:"name"`
	LastName    string `json:"lastName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// Feedback is a rating left after a consultation.
type Feedback struct {
	ID       string  `json:"_id"`
	Doctor   *Person `json:"doctor,omitempty"`
	Patient  *Person `json:"patient,omitempty"`
	Stars    int     `json:"stars,omitempty"`
	Feedback string  `json:"feedback,omitempty"`
	Type     string  `json:"type,omitempty"`
}

// Consultation is a paid consultation awaiting or past payout.
type Consultation struct {
	ID           string `json:"_id"`
	Doctor       Doctor `json:"doctorId"`
	PayoutStatus string `json:"payoutStatus,omitempty"`
}

// PayoutAmount is the doctor's share of the consultation fee.
func (c Consultation) PayoutAmount() decimal.Decimal {
	return c.Doctor.ConsultationFees.Mul(PayoutShare)
}

// Period counts records created today, this week and overall.
type Period struct {
	Today int `json:"today"`
	Week  int `json:"week"`
	Total int `json:"total"`
}

// SpecialityCount is one slice of the speciality distribution chart.
type SpecialityCount struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

// PlatformStats are the revenue figures of the dashboard.
type PlatformStats struct {
	TotalPlatformCut  decimal.Decimal `json:"totalPlatformCut"`
	TotalTransactions int             `json:"totalTransactions"`
}

// DashboardSummary is the payload of the dashboard page.
type DashboardSummary struct {
	Consultations          Period            `json:"consultations"`
	Patients               Period            `json:"patients"`
	Doctors                Period            `json:"doctors"`
	PlatformStats          PlatformStats     `json:"platformStats"`
	SpecialityDistribution []SpecialityCount `json:"specialityDistribution"`
}

// OTPRequest asks the backend to send a registration code.
type OTPRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

// OTPResponse carries the token that must accompany the code.
type OTPResponse struct {
	OTPToken string `json:"otpToken"`
}

// DoctorRegistration is the body of a doctor sign-up performed by an admin.
type DoctorRegistration struct {
	Email            string          `json:"email"`
	Password         string          `json:"password"`
	PhoneNumber      string          `json:"phoneNumber"`
	Name             string          `json:"name"`
	LastName         string          `json:"lastName"`
	Age              int             `json:"age"`
	SpecialityID     string          `json:"specialityId"`
	RespondTime      string          `json:"respondTime,omitempty"`
	ConsultationFees decimal.Decimal `json:"consultationFees"`
	OTPToken         string          `json:"otpToken"`
	OTPCode          int             `json:"otpCode"`
	Documents        []string        `json:"documents,omitempty"`
}

// UploadResult is the response of the upload endpoint.
type UploadResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Credentials sign an admin in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the token and identity of a signed-in admin.
type LoginResult struct {
	Token string `json:"token"`
	Admin Admin  `json:"admin"`
}
