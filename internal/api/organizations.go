package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/inventory"
	"github.com/erazemk/stockledger/internal/model"
)

// OrganizationsHandler handles organizations, members and invites.
type OrganizationsHandler struct {
	Svc *inventory.Service
}

type createOrganizationRequest struct {
	Name string `json:"name"`
}

type createInviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	// TTL is a Go duration string such as "72h".
	TTL string `json:"ttl"`
}

type inviteResponse struct {
	Invite *model.Invite `json:"invite"`
	Token  string        `json:"token"`
}

type acceptInviteRequest struct {
	Token string `json:"token"`
}

// Me handles GET /api/me.
func (h *OrganizationsHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	jsonResponse(w, http.StatusOK, map[string]string{"user_id": p.UserID, "email": p.Email})
}

// List handles GET /api/orgs.
func (h *OrganizationsHandler) List(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.Svc.ListOrganizations(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orgs == nil {
		orgs = []model.Organization{}
	}
	jsonResponse(w, http.StatusOK, orgs)
}

// Create handles POST /api/orgs.
func (h *OrganizationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Svc.CreateOrganization(r.Context(), PrincipalFrom(r.Context()), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, res)
}

// Delete handles DELETE /api/orgs/{org}?force=true.
func (h *OrganizationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid force value")
			return
		}
		force = b
	}

	res, err := h.Svc.DeleteOrganization(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Members handles GET /api/orgs/{org}/members.
func (h *OrganizationsHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.Svc.ListMembers(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	jsonResponse(w, http.StatusOK, members)
}

// Invites handles GET /api/orgs/{org}/invites.
func (h *OrganizationsHandler) Invites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.Svc.ListInvites(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if invites == nil {
		invites = []model.Invite{}
	}
	jsonResponse(w, http.StatusOK, invites)
}

// Invite handles POST /api/orgs/{org}/invites. The token is only returned
// here.
func (h *OrganizationsHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	role, ok := model.ParseRole(req.Role)
	if !ok {
		writeError(w, r, apperr.E(apperr.Validation, "unknown role %q", req.Role))
		return
	}
	var ttl time.Duration
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			writeError(w, r, apperr.E(apperr.Validation, "invalid ttl %q", req.TTL))
			return
		}
		ttl = d
	}

	inv, token, err := h.Svc.CreateInvite(r.Context(), PrincipalFrom(r.Context()), inventory.CreateInviteInput{
		OrgID: r.PathValue("org"),
		Email: req.Email,
		Role:  role,
		TTL:   ttl,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, inviteResponse{Invite: inv, Token: token})
}

// Accept handles POST /api/invites/accept.
func (h *OrganizationsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Svc.AcceptInvite(r.Context(), PrincipalFrom(r.Context()), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}
