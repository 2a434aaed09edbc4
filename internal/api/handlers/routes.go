package handlers

import (
	"net/http"

	"github.com/dvloznov/pillguide/internal/api/middleware"
)

// Routes groups the handlers served by the API. Jobs and DB may be nil.
type Routes struct {
	Prescriptions     *PrescriptionsHandler
	Medications       *MedicationsHandler
	Contraindications *ContraindicationsHandler
	Jobs              *JobsHandler
	DB                Pinger
}

// Mux builds the request router.
func (rt Routes) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/{$}", only(http.MethodGet, Root))
	mux.HandleFunc("/api/languages", only(http.MethodGet, Languages))

	// Prescriptions endpoints
	mux.HandleFunc("/api/prescriptions/upload", only(http.MethodPost, rt.Prescriptions.UploadPrescription))
	mux.HandleFunc("/api/prescriptions", only(http.MethodGet, rt.Prescriptions.ListPrescriptions))
	mux.HandleFunc("/api/prescriptions/{id}", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		rt.Prescriptions.GetPrescription(w, r, r.PathValue("id"))
	}))
	mux.HandleFunc("/api/prescriptions/{id}/image", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		rt.Prescriptions.GetPrescriptionImage(w, r, r.PathValue("id"))
	}))

	// Medications endpoints
	mux.HandleFunc("/api/medications", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			rt.Medications.ListMedications(w, r)
		case http.MethodPost:
			rt.Medications.CreateMedication(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/medications/{id}", only(http.MethodDelete, func(w http.ResponseWriter, r *http.Request) {
		rt.Medications.DeleteMedication(w, r, r.PathValue("id"))
	}))

	mux.HandleFunc("/api/contraindications/check", only(http.MethodPost, rt.Contraindications.CheckContraindications))

	// Jobs endpoints
	if rt.Jobs != nil {
		mux.HandleFunc("/api/jobs", only(http.MethodGet, rt.Jobs.ListJobs))
		mux.HandleFunc("/api/jobs/{id}", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			rt.Jobs.GetJob(w, r, r.PathValue("id"))
		}))
	}

	mux.HandleFunc("/health", Health(rt.DB))

	return mux
}

func only(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			methodNotAllowed(w)
			return
		}
		h(w, r)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
