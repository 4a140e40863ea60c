package credtrust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/credtrust/credtrust/password"
	"github.com/credtrust/credtrust/store"
)

// deriveLoginType maps the supplied contacts to a login type. The caller never
// chooses; the contacts do.
func deriveLoginType(req RegisterRequest) (LoginType, error) {
	switch {
	case req.ThirdPartyID != "":
		return LoginThirdParty, nil
	case req.Email != "" && req.Phone != "":
		return LoginBoth, nil
	case req.Email != "":
		return LoginEmail, nil
	case req.Phone != "":
		return LoginPhone, nil
	default:
		return "", fmt.Errorf("%w: at least one contact required", ErrInvalidInput)
	}
}

// Register creates a credential. Non-third-party credentials start INACTIVE
// and must verify the channels their login type requires; third-party
// credentials activate immediately and carry no password.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Credential, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	loginType, err := deriveLoginType(req)
	if err != nil {
		e.emitAudit(ctx, eventRegisterFailure, false, "", err, "")
		return nil, err
	}

	var passwordHash string
	if loginType != LoginThirdParty {
		if !password.Strong(req.Password) {
			e.emitAudit(ctx, eventRegisterFailure, false, "", ErrPasswordPolicy, "")
			return nil, ErrPasswordPolicy
		}
		passwordHash, err = e.hasher.Hash(req.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	now := time.Now()
	cred := &Credential{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		Phone:        req.Phone,
		ThirdPartyID: req.ThirdPartyID,
		PasswordHash: passwordHash,
		LoginType:    loginType,
		Status:       StatusInactive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if loginType == LoginThirdParty {
		cred.Status = StatusActive
	}

	if err := e.store.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			e.emitAudit(ctx, eventRegisterFailure, false, "", ErrAccountExists, "")
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.emitAudit(ctx, eventRegisterSuccess, true, cred.ID.String(), nil, "login_type="+string(loginType))
	return cred, nil
}
