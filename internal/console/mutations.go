package console

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/qsync/internal/api"
	"github.com/roach88/qsync/internal/fault"
	"github.com/roach88/qsync/internal/ir"
	"github.com/roach88/qsync/internal/mutation"
)

// MinPasswordLength is the shortest admin or doctor password accepted.
const MinPasswordLength = 6

// Done is the result of a mutation whose backend answers with a bare
// acknowledgement.
type Done struct{}

// BannerUpload is an image to upload and publish as a banner.
type BannerUpload struct {
	Filename string `json:"filename"`
	Content  []byte `json:"-"`
}

// DoctorForm is the admin-side doctor registration form, submitted after
// RequestDoctorOTP returned a token.
type DoctorForm struct {
	Email            string          `json:"email"`
	Password         string          `json:"-"`
	ConfirmPassword  string          `json:"-"`
	PhoneNumber      string          `json:"phoneNumber"`
	Name             string          `json:"name"`
	LastName         string          `json:"lastName"`
	DateOfBirth      time.Time       `json:"dateOfBirth"`
	SpecialityID     string          `json:"specialityId"`
	RespondTime      string          `json:"respondTime,omitempty"`
	ConsultationFees decimal.Decimal `json:"consultationFees"`
	OTPToken         string          `json:"otpToken"`
	OTPCode          string          `json:"-"`
	Documents        []string        `json:"documents,omitempty"`
}

// Mutations are the page actions of the console.
type Mutations struct {
	ApproveDoctor    mutation.Mutation[string, api.Doctor]
	DeleteDoctor     mutation.Mutation[string, Done]
	DeletePatient    mutation.Mutation[string, Done]
	CreateSpeciality mutation.Mutation[string, api.Speciality]
	DeleteSpeciality mutation.Mutation[string, Done]
	CreateBanner     mutation.Mutation[BannerUpload, api.Banner]
	DeleteBanner     mutation.Mutation[string, Done]
	MarkPayoutPaid   mutation.Mutation[string, Done]
	CreateAdmin      mutation.Mutation[api.NewAdmin, api.Admin]
	DeleteAdmin      mutation.Mutation[string, Done]
	RequestDoctorOTP mutation.Mutation[api.OTPRequest, api.OTPResponse]
	RegisterDoctor   mutation.Mutation[DoctorForm, api.Doctor]
}

// Mutation names.
const (
	ApproveDoctor    = "approve-doctor"
	DeleteDoctor     = "delete-doctor"
	DeletePatient    = "delete-patient"
	CreateSpeciality = "create-speciality"
	DeleteSpeciality = "delete-speciality"
	CreateBanner     = "create-banner"
	DeleteBanner     = "delete-banner"
	MarkPayoutPaid   = "mark-payout-paid"
	CreateAdmin      = "create-admin"
	DeleteAdmin      = "delete-admin"
	RequestDoctorOTP = "request-doctor-otp"
	RegisterDoctor   = "register-doctor"
)

var bannerExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

func byID(id string) string { return id }

func requireID(what string) func(string) error {
	return func(id string) error {
		if strings.TrimSpace(id) == "" {
			return fault.Validation("%s id is required", what)
		}
		return nil
	}
}

func ack(fn func(context.Context, string) error) mutation.Effect[string, Done] {
	return func(ctx context.Context, id string) (Done, error) {
		return Done{}, fn(ctx, id)
	}
}

func (c *Console) declare() Mutations {
	b := c.backend
	return Mutations{
		ApproveDoctor: mutation.Mutation[string, api.Doctor]{
			Name:        ApproveDoctor,
			Effect:      b.ApproveDoctor,
			Validate:    requireID("doctor"),
			Invalidates: []ir.Key{KeyDoctors, KeyDashboard},
			RowID:       byID,
		},
		DeleteDoctor: mutation.Mutation[string, Done]{
			Name:        DeleteDoctor,
			Effect:      ack(b.DeleteDoctor),
			Validate:    requireID("doctor"),
			Invalidates: []ir.Key{KeyDoctors, KeyDashboard},
			RowID:       byID,
		},
		DeletePatient: mutation.Mutation[string, Done]{
			Name:        DeletePatient,
			Effect:      ack(b.DeletePatient),
			Validate:    requireID("patient"),
			Invalidates: []ir.Key{KeyPatients, KeyDashboard},
			RowID:       byID,
		},
		CreateSpeciality: mutation.Mutation[string, api.Speciality]{
			Name:   CreateSpeciality,
			Effect: b.CreateSpeciality,
			Validate: func(title string) error {
				if strings.TrimSpace(title) == "" {
					return fault.Validation("speciality title is required")
				}
				return nil
			},
			Invalidates: []ir.Key{KeySpecialities},
		},
		DeleteSpeciality: mutation.Mutation[string, Done]{
			Name:        DeleteSpeciality,
			Effect:      ack(b.DeleteSpeciality),
			Validate:    requireID("speciality"),
			Invalidates: []ir.Key{KeySpecialities},
			RowID:       byID,
		},
		CreateBanner: mutation.Mutation[BannerUpload, api.Banner]{
			Name:        CreateBanner,
			Effect:      c.createBanner,
			Validate:    validateBanner,
			Invalidates: []ir.Key{KeyBanners},
		},
		DeleteBanner: mutation.Mutation[string, Done]{
			Name:        DeleteBanner,
			Effect:      ack(b.DeleteBanner),
			Validate:    requireID("banner"),
			Invalidates: []ir.Key{KeyBanners},
			RowID:       byID,
		},
		MarkPayoutPaid: mutation.Mutation[string, Done]{
			Name:        MarkPayoutPaid,
			Effect:      ack(b.MarkPayoutPaid),
			Validate:    requireID("consultation"),
			Invalidates: []ir.Key{KeyPayouts, KeyDashboard},
			RowID:       byID,
		},
		CreateAdmin: mutation.Mutation[api.NewAdmin, api.Admin]{
			Name:        CreateAdmin,
			Effect:      b.CreateAdmin,
			Validate:    validateNewAdmin,
			Invalidates: []ir.Key{KeyAdmins},
			Journal:     func(in api.NewAdmin) any { return adminEntry{Username: in.Username} },
		},
		DeleteAdmin: mutation.Mutation[string, Done]{
			Name:        DeleteAdmin,
			Effect:      ack(b.DeleteAdmin),
			Validate:    c.validateDeleteAdmin,
			Invalidates: []ir.Key{KeyAdmins},
			RowID:       byID,
		},
		RequestDoctorOTP: mutation.Mutation[api.OTPRequest, api.OTPResponse]{
			Name:   RequestDoctorOTP,
			Effect: b.RequestOTP,
			Validate: func(in api.OTPRequest) error {
				if in.Email == "" || in.PhoneNumber == "" {
					return fault.Validation("email and phone number are required")
				}
				return nil
			},
		},
		RegisterDoctor: mutation.Mutation[DoctorForm, api.Doctor]{
			Name:        RegisterDoctor,
			Effect:      c.registerDoctor,
			Validate:    c.validateDoctorForm,
			Invalidates: []ir.Key{KeyDoctors, KeyDashboard},
		},
	}
}

func validateBanner(in BannerUpload) error {
	if in.Filename == "" || len(in.Content) == 0 {
		return fault.Validation("banner image is required")
	}
	if !bannerExts[strings.ToLower(filepath.Ext(in.Filename))] {
		return fault.Validation("banner must be an image, got %q", in.Filename)
	}
	return nil
}

func (c *Console) createBanner(ctx context.Context, in BannerUpload) (api.Banner, error) {
	url, err := c.backend.Upload(ctx, in.Filename, bytes.NewReader(in.Content))
	if err != nil {
		return api.Banner{}, err
	}
	return c.backend.CreateBanner(ctx, url)
}

func validateNewAdmin(in api.NewAdmin) error {
	if strings.TrimSpace(in.Username) == "" {
		return fault.Validation("username is required")
	}
	if len(in.Password) < MinPasswordLength {
		return fault.Validation("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// adminEntry is what the journal keeps of a create-admin input.
type adminEntry struct {
	Username string `json:"username"`
}

// validateDeleteAdmin refuses to delete the signed-in admin. The backend
// refuses too.
func (c *Console) validateDeleteAdmin(id string) error {
	if err := requireID("admin")(id); err != nil {
		return err
	}
	s, ok, err := c.session.Load(context.Background())
	if err != nil {
		return err
	}
	if ok && s.Admin.ID == id {
		return fault.Validation("you cannot delete your own account")
	}
	return nil
}

func (c *Console) validateDoctorForm(in DoctorForm) error {
	switch {
	case in.Email == "" || in.PhoneNumber == "" || in.Name == "":
		return fault.Validation("name, email and phone number are required")
	case in.OTPToken == "":
		return fault.Validation("request an OTP before registering")
	case in.Password != in.ConfirmPassword:
		return fault.Validation("passwords do not match")
	case len(in.Password) < MinPasswordLength:
		return fault.Validation("password must be at least %d characters", MinPasswordLength)
	case in.SpecialityID == "":
		return fault.Validation("speciality is required")
	case in.DateOfBirth.IsZero() || AgeFrom(in.DateOfBirth, c.now()) < 0:
		return fault.Validation("date of birth is invalid")
	case in.ConsultationFees.IsNegative():
		return fault.Validation("consultation fees cannot be negative")
	}
	if !isDigits(strings.TrimSpace(in.OTPCode)) {
		return fault.Validation("OTP code must be numeric")
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *Console) registerDoctor(ctx context.Context, in DoctorForm) (api.Doctor, error) {
	code, _ := strconv.Atoi(strings.TrimSpace(in.OTPCode))
	return c.backend.RegisterDoctor(ctx, api.DoctorRegistration{
		Email:            in.Email,
		Password:         in.Password,
		PhoneNumber:      in.PhoneNumber,
		Name:             in.Name,
		LastName:         in.LastName,
		Age:              AgeFrom(in.DateOfBirth, c.now()),
		SpecialityID:     in.SpecialityID,
		RespondTime:      in.RespondTime,
		ConsultationFees: in.ConsultationFees,
		OTPToken:         in.OTPToken,
		OTPCode:          code,
		Documents:        in.Documents,
	})
}

// AgeFrom returns the age in whole years at now of someone born on dob.
func AgeFrom(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// Run methods execute one page action and wait for it to settle.

func (c *Console) ApproveDoctor(ctx context.Context, id string) *mutation.Run[api.Doctor] {
	return mutation.Execute(ctx, c.exec, c.mutations.ApproveDoctor, id)
}

func (c *Console) DeleteDoctor(ctx context.Context, id string) *mutation.Run[Done] {
	return mutation.Execute(ctx, c.exec, c.mutations.DeleteDoctor, id)
}

func (c *Console) DeletePatient(ctx context.Context, id string) *mutation.Run[Done] {
	return mutation.Execute(ctx, c.exec, c.mutations.DeletePatient, id)
}

func (c *Console) CreateSpeciality(ctx context.Context, title string) *mutation.Run[api.Speciality] {
	return mutation.Execute(ctx, c.exec, c.mutations.CreateSpeciality, title)
}

func (c *Console) DeleteSpeciality(ctx context.Context, id string) *mutation.Run[Done] {
	return mutation.Execute(ctx, c.exec, c.mutations.DeleteSpeciality, id)
}

func (c *Console) CreateBanner(ctx context.Context, in BannerUpload) *mutation.Run[api.Banner] {
	return mutation.Execute(ctx, c.exec, c.mutations.CreateBanner, in)
}

func (c *Console) DeleteBanner(ctx context.Context, id string) *mutation.Run[Done] {
	return mutation.Execute(ctx, c.exec, c.mutations.DeleteBanner, id)
}

func (c *Console) MarkPayoutPaid(ctx context.Context, id string) *mutation.Run[Done] {
	return mutation.Execute(ctx, c.exec, c.mutations.MarkPayoutPaid, id)
}

func (c *Console) CreateAdmin(ctx context.Context, in api.NewAdmin) *mutation.Run[api.Admin] {
	return mutation.Execute(ctx, c.exec, c.mutations.CreateAdmin, in)
}

func (c *Console) DeleteAdmin(ctx context.Context, id string) *mutation.Run[Done] {
	return mutation.Execute(ctx, c.exec, c.mutations.DeleteAdmin, id)
}

func (c *Console) RequestDoctorOTP(ctx context.Context, in api.OTPRequest) *mutation.Run[api.OTPResponse] {
	return mutation.Execute(ctx, c.exec, c.mutations.RequestDoctorOTP, in)
}

func (c *Console) RegisterDoctor(ctx context.Context, in DoctorForm) *mutation.Run[api.Doctor] {
	return mutation.Execute(ctx, c.exec, c.mutations.RegisterDoctor, in)
}
