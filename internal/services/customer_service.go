package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/validation"
)

const maxAddressesPerCustomer = 20

var (
	// ErrCustomerInvalidInput wraps field validation failures.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerEmailTaken indicates the email already has an account.
	ErrCustomerEmailTaken = errors.New("customer: email already registered")
	// ErrCustomerInvalidCredentials is returned for an unknown email or wrong password.
	ErrCustomerInvalidCredentials = errors.New("customer: invalid credentials")
	// ErrCustomerNotFound indicates the account or address does not exist.
	ErrCustomerNotFound = errors.New("customer: not found")
	// ErrCustomerAddressLimit indicates the address book is full.
	ErrCustomerAddressLimit = errors.New("customer: address limit reached")
	// ErrCustomerUnavailable indicates the datastore could not be reached.
	ErrCustomerUnavailable = errors.New("customer: unavailable")
)

// CustomerServiceDeps wires accounts, addresses and session issuing.
type CustomerServiceDeps struct {
	Customers       repositories.CustomerRepository
	Addresses       repositories.AddressRepository
	Sessions        SessionIssuer
	HashPassword    func(string) (string, error)
	ComparePassword func(hash, password string) error
	Clock           func() time.Time
	IDGen           func() string
	Logger          EventLogger
}

type customerService struct {
	customers repositories.CustomerRepository
	addresses repositories.AddressRepository
	sessions  SessionIssuer
	hash      func(string) (string, error)
	compare   func(hash, password string) error
	validator *validation.Validator
	now       func() time.Time
	newID     func() string
	logger    EventLogger
}

// NewCustomerService constructs the account service.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil || deps.Addresses == nil {
		return nil, errors.New("customer service: customer and address repositories are required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("customer service: session issuer is required")
	}
	hash := deps.HashPassword
	if hash == nil {
		hash = auth.HashPassword
	}
	compare := deps.ComparePassword
	if compare == nil {
		compare = auth.ComparePassword
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &customerService{
		customers: deps.Customers,
		addresses: deps.Addresses,
		sessions:  deps.Sessions,
		hash:      hash,
		compare:   compare,
		validator: validation.Default(),
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

func (s *customerService) Register(ctx context.Context, cmd RegisterCommand) (AuthResult, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Email = strings.ToLower(strings.TrimSpace(cmd.Email))
	cmd.Mobile = strings.TrimSpace(cmd.Mobile)
	if err := s.validate(cmd); err != nil {
		return AuthResult{}, err
	}
	hash, err := s.hash(cmd.Password)
	if err != nil {
		return AuthResult{}, err
	}
	now := s.now()
	customer := Customer{
		ID:           s.newID(),
		Name:         cmd.Name,
		Email:        cmd.Email,
		Mobile:       cmd.Mobile,
		PasswordHash: hash,
		Locale:       strings.TrimSpace(cmd.Locale),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.customers.Insert(ctx, customer); err != nil {
		if isRepoConflict(err) {
			return AuthResult{}, ErrCustomerEmailTaken
		}
		return AuthResult{}, s.translate(err)
	}
	s.logger(ctx, "customer.registered", map[string]any{"customerID": customer.ID})
	return s.issue(customer)
}

func (s *customerService) Login(ctx context.Context, cmd LoginCommand) (AuthResult, error) {
	cmd.Email = strings.ToLower(strings.TrimSpace(cmd.Email))
	if err := s.validate(cmd); err != nil {
		return AuthResult{}, err
	}
	customer, err := s.customers.FindByEmail(ctx, cmd.Email)
	if err != nil {
		if isRepoNotFound(err) {
			return AuthResult{}, ErrCustomerInvalidCredentials
		}
		return AuthResult{}, s.translate(err)
	}
	if err := s.compare(customer.PasswordHash, cmd.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger(ctx, "customer.login_failed", map[string]any{"customerID": customer.ID})
			return AuthResult{}, ErrCustomerInvalidCredentials
		}
		return AuthResult{}, err
	}
	return s.issue(customer)
}

func (s *customerService) issue(customer Customer) (AuthResult, error) {
	token, expires, err := s.sessions.Issue(customer.ID, customer.Email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("customer: issue session: %w", err)
	}
	customer.PasswordHash = ""
	return AuthResult{Customer: customer, Token: token, ExpiresAt: expires}, nil
}

func (s *customerService) GetProfile(ctx context.Context, customerID string) (Customer, error) {
	customer, err := s.load(ctx, customerID)
	if err != nil {
		return Customer{}, err
	}
	customer.PasswordHash = ""
	return customer, nil
}

func (s *customerService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (Customer, error) {
	if err := s.validate(cmd); err != nil {
		return Customer{}, err
	}
	customer, err := s.load(ctx, cmd.CustomerID)
	if err != nil {
		return Customer{}, err
	}
	if cmd.Name != nil {
		customer.Name = strings.TrimSpace(*cmd.Name)
	}
	if cmd.Mobile != nil {
		customer.Mobile = strings.TrimSpace(*cmd.Mobile)
	}
	if cmd.Locale != nil {
		customer.Locale = strings.TrimSpace(*cmd.Locale)
	}
	customer.UpdatedAt = s.now()
	if err := s.customers.Update(ctx, customer); err != nil {
		return Customer{}, s.translate(err)
	}
	customer.PasswordHash = ""
	return customer, nil
}

func (s *customerService) ListAddresses(ctx context.Context, customerID string) ([]Address, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, ErrCustomerInvalidInput
	}
	addresses, err := s.addresses.List(ctx, customerID)
	if err != nil {
		return nil, s.translate(err)
	}
	return addresses, nil
}

func (s *customerService) UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Address{}, ErrCustomerInvalidInput
	}
	if err := s.validate(cmd); err != nil {
		return Address{}, err
	}
	existing, err := s.ListAddresses(ctx, customerID)
	if err != nil {
		return Address{}, err
	}

	now := s.now()
	address := Address{
		ID:         strings.TrimSpace(cmd.AddressID),
		CustomerID: customerID,
		Name:       strings.TrimSpace(cmd.Name),
		Mobile:     strings.TrimSpace(cmd.Mobile),
		Line1:      strings.TrimSpace(cmd.Line1),
		Line2:      strings.TrimSpace(cmd.Line2),
		City:       strings.TrimSpace(cmd.City),
		State:      strings.TrimSpace(cmd.State),
		Pincode:    strings.TrimSpace(cmd.Pincode),
		Country:    strings.ToUpper(strings.TrimSpace(cmd.Country)),
		IsDefault:  cmd.IsDefault,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if address.Country == "" {
		address.Country = "IN"
	}

	if address.ID == "" {
		if len(existing) >= maxAddressesPerCustomer {
			return Address{}, ErrCustomerAddressLimit
		}
		address.ID = s.newID()
		if len(existing) == 0 {
			address.IsDefault = true
		}
	} else {
		found := false
		for _, a := range existing {
			if a.ID == address.ID {
				found = true
				address.CreatedAt = a.CreatedAt
				break
			}
		}
		if !found {
			return Address{}, ErrCustomerNotFound
		}
	}

	if err := s.addresses.Save(ctx, address); err != nil {
		return Address{}, s.translate(err)
	}
	return address, nil
}

func (s *customerService) DeleteAddress(ctx context.Context, customerID, addressID string) error {
	customerID = strings.TrimSpace(customerID)
	addressID = strings.TrimSpace(addressID)
	if customerID == "" || addressID == "" {
		return ErrCustomerInvalidInput
	}
	if err := s.addresses.Delete(ctx, customerID, addressID); err != nil {
		return s.translate(err)
	}
	return nil
}

func (s *customerService) load(ctx context.Context, customerID string) (Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Customer{}, ErrCustomerInvalidInput
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return Customer{}, s.translate(err)
	}
	return customer, nil
}

func (s *customerService) validate(v any) error {
	if err := s.validator.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrCustomerInvalidInput, err)
	}
	return nil
}

func (s *customerService) translate(err error) error {
	switch {
	case isRepoNotFound(err):
		return ErrCustomerNotFound
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrCustomerUnavailable, err)
	}
	return err
}
