package backend

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/roach88/qsync/internal/api"
)

func withAdmin(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func adminFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// removeByID deletes the first element whose id matches and reports
// whether one was found.
func removeByID[T any](list *[]T, id string, idOf func(T) string) bool {
	for i, v := range *list {
		if idOf(v) == id {
			*list = append((*list)[:i:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in api.Credentials
	if !decodeBody(w, r, &in) {
		return
	}
	s.mu.Lock()
	var found *AdminAccount
	for i := range s.admins {
		if strings.EqualFold(s.admins[i].Email, in.Email) && s.admins[i].Password == in.Password {
			found = &s.admins[i]
			break
		}
	}
	var admin api.Admin
	if found != nil {
		admin = found.Admin
	}
	s.mu.Unlock()

	if found == nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, api.LoginResult{Token: s.IssueToken(admin.ID), Admin: admin})
}

func (s *Server) listDoctors(keep func(api.Doctor) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		out := []api.Doctor{}
		for _, d := range s.doctors {
			if keep(d) {
				out = append(out, d)
			}
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) approveDoctor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doctors {
		if s.doctors[i].ID != id {
			continue
		}
		if s.doctors[i].IsApproved {
			writeError(w, http.StatusConflict, "Doctor already approved")
			return
		}
		s.doctors[i].IsApproved = true
		writeJSON(w, http.StatusOK, s.doctors[i])
		return
	}
	writeError(w, http.StatusNotFound, "Doctor not found")
}

func (s *Server) deleteDoctor(w http.ResponseWriter, r *http.Request) {
	s.deleteFrom(w, r, "Doctor", func(id string) bool {
		return removeByID(&s.doctors, id, func(d api.Doctor) string { return d.ID })
	})
}

func (s *Server) listPatients(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]api.Patient{}, s.patients...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deletePatient(w http.ResponseWriter, r *http.Request) {
	s.deleteFrom(w, r, "Patient", func(id string) bool {
		return removeByID(&s.patients, id, func(p api.Patient) string { return p.ID })
	})
}

func (s *Server) listSpecialities(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]api.Speciality{}, s.specialities...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createSpeciality(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title string `json:"title"`
		Logo  string `json:"logo"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range s.specialities {
		if strings.EqualFold(sp.Title, title) {
			writeError(w, http.StatusConflict, "Speciality already exists")
			return
		}
	}
	sp := api.Speciality{ID: s.newID(), Title: title, Logo: in.Logo}
	s.specialities = append(s.specialities, sp)
	writeJSON(w, http.StatusCreated, sp)
}

func (s *Server) deleteSpeciality(w http.ResponseWriter, r *http.Request) {
	s.deleteFrom(w, r, "Speciality", func(id string) bool {
		return removeByID(&s.specialities, id, func(sp api.Speciality) string { return sp.ID })
	})
}

func (s *Server) listBanners(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]api.Banner{}, s.banners...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createBanner(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Img string `json:"img"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Img == "" {
		writeError(w, http.StatusBadRequest, "Image URL is required")
		return
	}
	s.mu.Lock()
	b := api.Banner{ID: s.newID(), Img: in.Img}
	s.banners = append(s.banners, b)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) deleteBanner(w http.ResponseWriter, r *http.Request) {
	s.deleteFrom(w, r, "Banner", func(id string) bool {
		return removeByID(&s.banners, id, func(b api.Banner) string { return b.ID })
	})
}

func (s *Server) pendingPayouts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]api.Consultation{}, s.consultations...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"consultations": out})
}

func (s *Server) markPayoutPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.consultations {
		if c.ID == id {
			c.PayoutStatus = "paid"
			s.paid = append(s.paid, c)
			s.consultations = append(s.consultations[:i:i], s.consultations[i+1:]...)
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Consultation not found")
}

func (s *Server) listAdmins(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]api.Admin, len(s.admins))
	for i, a := range s.admins {
		out[i] = a.Admin
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createAdmin(w http.ResponseWriter, r *http.Request) {
	var in api.NewAdmin
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Username) == "" || len(in.Password) < 6 {
		writeError(w, http.StatusBadRequest, "Username and a password of at least 6 characters are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.admins {
		if a.Username == in.Username {
			writeError(w, http.StatusConflict, "Username already taken")
			return
		}
	}
	acct := AdminAccount{Admin: api.Admin{ID: s.newID(), Username: in.Username}, Password: in.Password}
	s.admins = append(s.admins, acct)
	writeJSON(w, http.StatusCreated, acct.Admin)
}

func (s *Server) deleteAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if id == adminFrom(r.Context()) {
		writeError(w, http.StatusForbidden, "You cannot delete your own account")
		return
	}
	s.mu.Lock()
	found := removeByID(&s.admins, id, func(a AdminAccount) string { return a.ID })
	if found {
		for tok, owner := range s.tokens {
			if owner == id {
				delete(s.tokens, tok)
			}
		}
	}
	s.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, "Admin not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Admin deleted"})
}

func (s *Server) listFeedbacks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]api.Feedback{}, s.feedbacks...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	now := s.wall.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	period := func(ids []string) api.Period {
		p := api.Period{Total: len(ids)}
		for _, id := range ids {
			at, ok := s.created[id]
			if !ok {
				continue
			}
			if now.Sub(at) < 24*time.Hour {
				p.Today++
			}
			if now.Sub(at) < 7*24*time.Hour {
				p.Week++
			}
		}
		return p
	}

	var doctorIDs, patientIDs, consultIDs []string
	dist := map[string]int{}
	for _, d := range s.doctors {
		doctorIDs = append(doctorIDs, d.ID)
		if d.IsApproved && d.Speciality.ID != "" {
			dist[d.Speciality.ID]++
		}
	}
	for _, p := range s.patients {
		patientIDs = append(patientIDs, p.ID)
	}
	cut := decimal.Zero
	platformShare := decimal.NewFromInt(1).Sub(api.PayoutShare)
	for _, c := range s.consultations {
		consultIDs = append(consultIDs, c.ID)
	}
	for _, c := range s.paid {
		consultIDs = append(consultIDs, c.ID)
		cut = cut.Add(c.Doctor.ConsultationFees.Mul(platformShare))
	}

	summary := api.DashboardSummary{
		Consultations: period(consultIDs),
		Patients:      period(patientIDs),
		Doctors:       period(doctorIDs),
		PlatformStats: api.PlatformStats{TotalPlatformCut: cut, TotalTransactions: len(s.paid)},
	}
	for _, sp := range s.specialities {
		if n := dist[sp.ID]; n > 0 {
			summary.SpecialityDistribution = append(summary.SpecialityDistribution, api.SpecialityCount{Title: sp.Title, Count: n})
		}
	}
	if summary.SpecialityDistribution == nil {
		summary.SpecialityDistribution = []api.SpecialityCount{}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) requestOTP(w http.ResponseWriter, r *http.Request) {
	var in api.OTPRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Email == "" || in.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "Email and phone number are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.doctors {
		if strings.EqualFold(d.Email, in.Email) {
			writeError(w, http.StatusConflict, "Email already registered")
			return
		}
	}
	tok := s.newID()
	s.otps[tok] = strings.ToLower(in.Email)
	writeJSON(w, http.StatusOK, api.OTPResponse{OTPToken: tok})
}

func (s *Server) registerDoctor(w http.ResponseWriter, r *http.Request) {
	var in api.DoctorRegistration
	if !decodeBody(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.otps[in.OTPToken]
	if !ok || email != strings.ToLower(in.Email) || in.OTPCode != OTPCode {
		writeError(w, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}
	var spec api.Speciality
	for _, sp := range s.specialities {
		if sp.ID == in.SpecialityID {
			spec = sp
		}
	}
	if spec.ID == "" {
		writeError(w, http.StatusBadRequest, "Unknown speciality")
		return
	}
	delete(s.otps, in.OTPToken)

	d := api.Doctor{
		ID:               s.newID(),
		Name:             in.Name,
		LastName:         in.LastName,
		Email:            in.Email,
		PhoneNumber:      in.PhoneNumber,
		Age:              in.Age,
		Speciality:       api.SpecialityRef{Speciality: spec},
		RespondTime:      in.RespondTime,
		ConsultationFees: in.ConsultationFees,
		IsApproved:       true,
	}
	s.doctors = append(s.doctors, d)
	s.created[d.ID] = s.wall.Now()
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.UploadResult{Error: "file is required"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.UploadResult{Error: err.Error()})
		return
	}

	name := s.newID() + "-" + path.Base(hdr.Filename)
	s.mu.Lock()
	s.uploads[name] = data
	s.mu.Unlock()

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, http.StatusOK, api.UploadResult{Success: true, URL: scheme + "://" + r.Host + "/uploads/" + name})
}

func (s *Server) serveUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	data, ok := s.uploads[name]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Upload not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	_, _ = w.Write(data)
}

// deleteFrom runs remove under the lock and answers 200 or 404.
func (s *Server) deleteFrom(w http.ResponseWriter, r *http.Request, kind string, remove func(id string) bool) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	found := remove(id)
	s.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, kind+" not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": kind + " deleted"})
}
