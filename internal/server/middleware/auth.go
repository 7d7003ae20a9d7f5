package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// AppClaims defines our custom JWT claims structure. The subject carries the
// numeric user id minted by the account service.
type AppClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware validates the session token and binds the authenticated
// identity to the request metadata. The token is read from the session-token
// cookie, with a "token" query parameter as fallback since browsers cannot
// set headers on WebSocket upgrades.
func NewAuthMiddleware(logger *slog.Logger, jwtSecret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			var tokenString string
			if cookie, err := r.Cookie("session-token"); err == nil {
				tokenString = cookie.Value
			} else {
				tokenString = r.URL.Query().Get("token")
			}

			if tokenString == "" {
				logger.Warn("Session token missing in request", "ip", reqMeta.IP)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Parse and validate the JWT token with HMAC signing
			token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})

			// Reject token if invalid
			if err != nil || !token.Valid {
				logger.Warn("Invalid session token presented", "ip", reqMeta.IP, slog.Any("error", err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(*AppClaims)
			if !ok {
				logger.Error("Failed to parse custom JWT claims", slog.Any("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			userID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				logger.Warn("Valid token carries a non-numeric 'sub' claim", "ip", reqMeta.IP, "sub", claims.Subject)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			reqMeta.UserID = userID
			reqMeta.Username = claims.Username
			next.ServeHTTP(w, r)
		})
	}
}
