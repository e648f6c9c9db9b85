package model

import "time"

// Customer represents an account record as stored in the `customers`
// table.  Sessions start anonymous and are bound to a customer after
// login; the binding is carried in the access token, never in the
// client itself.
//
// Fields:
//  ID           – primary key identifier of the customer.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
type Customer struct {
    ID           uint64    // customers.id
    Email        string    // customers.email
    PasswordHash string    // customers.password_hash
    IsActive     bool      // customers.is_active
    CreatedAt    time.Time // customers.created_at
}
