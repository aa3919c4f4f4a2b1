package api

import (
	"context"
	"net/http"
)

// call sends a request and decodes the response as T.
func call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var out T
	err := c.do(ctx, method, path, body, &out)
	return out, err
}

func (c *Client) withID(ctx context.Context, method, prefix, id string, body, out any) error {
	p, err := pathWithID(prefix, id)
	if err != nil {
		return err
	}
	return c.do(ctx, method, p, body, out)
}

// PendingDoctors lists doctors awaiting approval.
func (c *Client) PendingDoctors(ctx context.Context) ([]Doctor, error) {
	return call[[]Doctor](ctx, c, http.MethodGet, "/api/doctor/pending", nil)
}

// ApprovedDoctors lists approved doctors.
func (c *Client) ApprovedDoctors(ctx context.Context) ([]Doctor, error) {
	return call[[]Doctor](ctx, c, http.MethodGet, "/api/doctor/approved", nil)
}

// Doctors lists every doctor.
func (c *Client) Doctors(ctx context.Context) ([]Doctor, error) {
	return call[[]Doctor](ctx, c, http.MethodGet, "/api/doctor", nil)
}

// ApproveDoctor approves a pending doctor.
func (c *Client) ApproveDoctor(ctx context.Context, id string) (Doctor, error) {
	p, err := pathWithID("/api/doctors/approve", id)
	if err != nil {
		return Doctor{}, err
	}
	return call[Doctor](ctx, c, http.MethodPut, p, nil)
}

// DeleteDoctor removes a doctor.
func (c *Client) DeleteDoctor(ctx context.Context, id string) error {
	return c.withID(ctx, http.MethodDelete, "/api/doctor", id, nil, nil)
}

// Patients lists patients.
func (c *Client) Patients(ctx context.Context) ([]Patient, error) {
	return call[[]Patient](ctx, c, http.MethodGet, "/api/patient", nil)
}

// DeletePatient removes a patient.
func (c *Client) DeletePatient(ctx context.Context, id string) error {
	return c.withID(ctx, http.MethodDelete, "/api/patient", id, nil, nil)
}

// Specialities lists specialities.
func (c *Client) Specialities(ctx context.Context) ([]Speciality, error) {
	return call[[]Speciality](ctx, c, http.MethodGet, "/api/speciality", nil)
}

// CreateSpeciality adds a speciality.
func (c *Client) CreateSpeciality(ctx context.Context, title string) (Speciality, error) {
	return call[Speciality](ctx, c, http.MethodPost, "/api/speciality", map[string]string{"title": title})
}

// DeleteSpeciality removes a speciality.
func (c *Client) DeleteSpeciality(ctx context.Context, id string) error {
	return c.withID(ctx, http.MethodDelete, "/api/speciality", id, nil, nil)
}

// Banners lists banners.
func (c *Client) Banners(ctx context.Context) ([]Banner, error) {
	return call[[]Banner](ctx, c, http.MethodGet, "/api/banner", nil)
}

// CreateBanner registers an uploaded image as a banner.
func (c *Client) CreateBanner(ctx context.Context, img string) (Banner, error) {
	return call[Banner](ctx, c, http.MethodPost, "/api/banner", map[string]string{"img": img})
}

// DeleteBanner removes a banner.
func (c *Client) DeleteBanner(ctx context.Context, id string) error {
	return c.withID(ctx, http.MethodDelete, "/api/banner", id, nil, nil)
}

// PendingPayouts lists consultations whose payout has not been sent.
func (c *Client) PendingPayouts(ctx context.Context) ([]Consultation, error) {
	var env struct {
		Consultations []Consultation `json:"consultations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/consultation/payouts/pending", nil, &env); err != nil {
		return nil, err
	}
	if env.Consultations == nil {
		return []Consultation{}, nil
	}
	return env.Consultations, nil
}

// MarkPayoutPaid records a consultation's payout as sent.
func (c *Client) MarkPayoutPaid(ctx context.Context, id string) error {
	return c.withID(ctx, http.MethodPut, "/api/consultation/payout", id, nil, nil)
}

// Admins lists administrators.
func (c *Client) Admins(ctx context.Context) ([]Admin, error) {
	return call[[]Admin](ctx, c, http.MethodGet, "/api/admin", nil)
}

// CreateAdmin adds an administrator.
func (c *Client) CreateAdmin(ctx context.Context, in NewAdmin) (Admin, error) {
	return call[Admin](ctx, c, http.MethodPost, "/api/admin", in)
}

// DeleteAdmin removes an administrator.
func (c *Client) DeleteAdmin(ctx context.Context, id string) error {
	return c.withID(ctx, http.MethodDelete, "/api/admin", id, nil, nil)
}

// Feedbacks lists consultation feedback.
func (c *Client) Feedbacks(ctx context.Context) ([]Feedback, error) {
	return call[[]Feedback](ctx, c, http.MethodGet, "/api/feedback", nil)
}

// DashboardSummary returns the dashboard counters.
func (c *Client) DashboardSummary(ctx context.Context) (DashboardSummary, error) {
	return call[DashboardSummary](ctx, c, http.MethodGet, "/api/dashboard/summary", nil)
}

// RequestOTP starts a doctor registration.
func (c *Client) RequestOTP(ctx context.Context, in OTPRequest) (OTPResponse, error) {
	return call[OTPResponse](ctx, c, http.MethodPost, "/api/auth/request-otp", in)
}

// RegisterDoctor completes a doctor registration.
func (c *Client) RegisterDoctor(ctx context.Context, in DoctorRegistration) (Doctor, error) {
	return call[Doctor](ctx, c, http.MethodPost, "/api/auth/doctor/register", in)
}

// Login exchanges admin credentials for a bearer token.
func (c *Client) Login(ctx context.Context, in Credentials) (LoginResult, error) {
	return call[LoginResult](ctx, c, http.MethodPost, "/api/auth/admin/login", in)
}
