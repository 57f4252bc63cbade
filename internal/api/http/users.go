package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	authmw "github.com/quizdesk/quizdesk/internal/auth/middleware"
)

type userRow struct {
	ID       string `json:"id"`
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=student teacher reviewer admin"`
	Password string `json:"password,omitempty"` // plaintext, hashed on write
}

// POST /users/bulk — JSON array upsert keyed by username.
func BulkUpsertUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []userRow
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, "expected JSON array", http.StatusBadRequest)
			return
		}
		n := 0
		for _, row := range rows {
			if err := validate.Struct(row); err != nil {
				http.Error(w, "bad row "+row.Username+": "+err.Error(), http.StatusUnprocessableEntity)
				return
			}
			if row.ID == "" {
				row.ID = uuid.NewString()
			}
			hash := ""
			if row.Password != "" {
				h, err := bcrypt.GenerateFromPassword([]byte(row.Password), bcrypt.DefaultCost)
				if err != nil {
					http.Error(w, "hash password", http.StatusInternalServerError)
					return
				}
				hash = string(h)
			}
			_, err := db.ExecContext(r.Context(), `INSERT INTO users (id,username,password_hash,role,created_at)
				VALUES ($1,$2,$3,$4,$5)
				ON CONFLICT (username) DO UPDATE SET role=EXCLUDED.role,
					password_hash=CASE WHEN EXCLUDED.password_hash='' THEN users.password_hash ELSE EXCLUDED.password_hash END`,
				row.ID, row.Username, hash, row.Role, time.Now().Unix())
			if err != nil {
				http.Error(w, "upsert "+row.Username+": "+err.Error(), http.StatusInternalServerError)
				return
			}
			n++
		}
		writeJSON(w, map[string]int{"upserted": n})
	}
}

// GET /users
func ListUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.QueryContext(r.Context(),
			`SELECT id, username, role FROM users ORDER BY username LIMIT $1 OFFSET $2`,
			parseIntDefault(r.URL.Query().Get("limit"), 100),
			parseIntDefault(r.URL.Query().Get("offset"), 0))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()
		out := []userRow{}
		for rows.Next() {
			var u userRow
			if err := rows.Scan(&u.ID, &u.Username, &u.Role); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			out = append(out, u)
		}
		writeJSON(w, out)
	}
}

type changePasswordReq struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// POST /users/change-password — always scoped to the authenticated subject.
func ChangePasswordHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		var req changePasswordReq
		if err := decodeValid(r, &req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		var hash string
		err := db.QueryRowContext(r.Context(),
			`SELECT password_hash FROM users WHERE id=$1`, sub).Scan(&hash)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.OldPassword)) != nil {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			http.Error(w, "hash password", http.StatusInternalServerError)
			return
		}
		if _, err := db.ExecContext(r.Context(),
			`UPDATE users SET password_hash=$1 WHERE id=$2`, string(newHash), sub); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
