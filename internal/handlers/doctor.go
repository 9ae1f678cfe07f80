package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/docbookhq/docbook/internal/model"
	"github.com/docbookhq/docbook/internal/storage"
	"github.com/google/uuid"
)

type DoctorHandler struct {
	doctors *storage.DoctorRepository
}

func NewDoctorHandler(doctors *storage.DoctorRepository) *DoctorHandler {
	return &DoctorHandler{doctors: doctors}
}

type doctorView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
	Degrees   string `json:"degrees,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

func toDoctorView(d model.Doctor) doctorView {
	return doctorView{ID: d.ID, Name: d.Name, Specialty: d.Specialty, Degrees: d.Degrees, Bio: d.Bio}
}

type locationView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
}

func toLocationView(l model.Location) locationView {
	return locationView{ID: l.ID, Name: l.Name, Address: l.Address, City: l.City, State: l.State, Zip: l.Zip}
}

type updateProfileRequest struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Degrees   string `json:"degrees"`
	Bio       string `json:"bio"`
}

// Profile serves GET and PUT /api/v1/doctors/me for the authenticated doctor.
func (h *DoctorHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		doctor, err := h.doctors.GetByID(r.Context(), claims.DoctorID)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "doctor not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load profile", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(toDoctorView(doctor))
	case http.MethodPut:
		var req updateProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		err := h.doctors.UpdateProfile(r.Context(), claims.DoctorID,
			req.Name, strings.TrimSpace(req.Specialty), strings.TrimSpace(req.Degrees), strings.TrimSpace(req.Bio))
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "doctor not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to update profile", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type createLocationRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

// Locations serves POST and GET /api/v1/locations.
func (h *DoctorHandler) Locations(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createLocationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Address = strings.TrimSpace(req.Address)
		req.City = strings.TrimSpace(req.City)
		if req.Name == "" || req.Address == "" || req.City == "" {
			http.Error(w, "name, address and city required", http.StatusBadRequest)
			return
		}
		loc := model.Location{
			ID:       uuid.NewString(),
			DoctorID: claims.DoctorID,
			Name:     req.Name,
			Address:  req.Address,
			City:     req.City,
			State:    strings.TrimSpace(req.State),
			Zip:      strings.TrimSpace(req.Zip),
		}
		id, err := h.doctors.CreateLocation(r.Context(), loc)
		if err != nil {
			http.Error(w, "failed to create location", http.StatusInternalServerError)
			return
		}
		loc.ID = id
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toLocationView(loc))
	case http.MethodGet:
		locs, err := h.doctors.ListLocations(r.Context(), claims.DoctorID)
		if err != nil {
			http.Error(w, "failed to list locations", http.StatusInternalServerError)
			return
		}
		views := make([]locationView, 0, len(locs))
		for _, l := range locs {
			views = append(views, toLocationView(l))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"locations": views})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Search serves GET /api/v1/public/doctors. It is unauthenticated and
// matches on name, specialty or chamber city.
func (h *DoctorHandler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	doctors, err := h.doctors.Search(r.Context(),
		strings.TrimSpace(q.Get("q")), strings.TrimSpace(q.Get("specialty")), strings.TrimSpace(q.Get("city")), limit)
	if err != nil {
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	views := make([]doctorView, 0, len(doctors))
	for _, d := range doctors {
		views = append(views, toDoctorView(d))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"doctors": views})
}
