package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxProfileBodySize = 16 * 1024

// MeHandlers serves the signed-in customer's profile and address book.
type MeHandlers struct {
	requireCustomer Middleware
	customers       services.CustomerService
}

// NewMeHandlers constructs handlers guarded by the customer session middleware.
func NewMeHandlers(requireCustomer Middleware, customers services.CustomerService) *MeHandlers {
	return &MeHandlers{requireCustomer: requireCustomer, customers: customers}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.requireCustomer != nil {
		r.Use(h.requireCustomer)
	}
	r.Get("/", h.getProfile)
	r.Patch("/", h.updateProfile)
	r.Get("/addresses", h.listAddresses)
	r.Post("/addresses", h.createAddress)
	r.Put("/addresses/{addressID}", h.updateAddress)
	r.Delete("/addresses/{addressID}", h.deleteAddress)
}

type addressListResponse struct {
	Items []addressPayload `json:"items"`
}

func (h *MeHandlers) ready(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.customers == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("customer_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	return principalSubject(w, r, auth.PrincipalCustomer)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	customer, err := h.customers.GetProfile(r.Context(), customerID)
	if err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomerPayload(customer))
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	var cmd services.UpdateProfileCommand
	if !decodeJSONBody(w, r, maxProfileBodySize, &cmd) {
		return
	}
	cmd.CustomerID = customerID
	customer, err := h.customers.UpdateProfile(r.Context(), cmd)
	if err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomerPayload(customer))
}

func (h *MeHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	addresses, err := h.customers.ListAddresses(r.Context(), customerID)
	if err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	items := make([]addressPayload, 0, len(addresses))
	for _, addr := range addresses {
		items = append(items, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, addressListResponse{Items: items})
}

func (h *MeHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	h.saveAddress(w, r, "", http.StatusCreated)
}

func (h *MeHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	h.saveAddress(w, r, chi.URLParam(r, "addressID"), http.StatusOK)
}

func (h *MeHandlers) saveAddress(w http.ResponseWriter, r *http.Request, addressID string, status int) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	var cmd services.UpsertAddressCommand
	if !decodeJSONBody(w, r, maxProfileBodySize, &cmd) {
		return
	}
	cmd.CustomerID = customerID
	cmd.AddressID = addressID
	addr, err := h.customers.UpsertAddress(r.Context(), cmd)
	if err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, status, buildAddressPayload(addr))
}

func (h *MeHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	if err := h.customers.DeleteAddress(r.Context(), customerID, chi.URLParam(r, "addressID")); err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
