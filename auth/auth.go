package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"blogroll/common"
	"blogroll/models"
	"blogroll/policy"
)

const currentUserKey = "current_user"

type AuthModule struct {
	db      *gorm.DB
	tokens  *Tokens
	log     zerolog.Logger
	limiter *httprate.RateLimiter
}

// NewAuthModule wires registration, login and the auth middleware. A
// rateLimit of zero disables throttling of register and login.
func NewAuthModule(db *gorm.DB, tokens *Tokens, logger zerolog.Logger, rateLimit int) *AuthModule {
	a := &AuthModule{db: db, tokens: tokens, log: logger}
	if rateLimit > 0 {
		// the gin adapter writes the response itself
		a.limiter = httprate.NewRateLimiter(rateLimit, time.Minute,
			httprate.WithLimitHandler(func(http.ResponseWriter, *http.Request) {}),
		)
	}
	return a
}

func (a *AuthModule) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/register", a.rateLimit, a.register)
	api.POST("/login", a.rateLimit, a.login)
}

type RegisterInput struct {
	Name                 string `json:"name" form:"name" binding:"required,max=255"`
	Email                string `json:"email" form:"email" binding:"required,email,max=255"`
	Password             string `json:"password" form:"password" binding:"required,min=8,max=72"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation" binding:"required,eqfield=Password"`
}

type LoginInput struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
}

// Register creates an account and returns it with a fresh token.
func (a *AuthModule) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	email := strings.TrimSpace(in.Email)

	taken, err := EmailTaken(a.db.WithContext(ctx), email, 0)
	if err != nil {
		return nil, "", err
	}
	if taken {
		return nil, "", common.FieldError("email", "The email has already been taken.")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}

	user := &models.User{Name: strings.TrimSpace(in.Name), Email: email, Password: hash}
	if err := a.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := a.tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}
	a.log.Info().Uint("user_id", user.ID).Msg("user registered")
	return user, token, nil
}

// Login checks credentials and returns a token for the matching user.
func (a *AuthModule) Login(ctx context.Context, in LoginInput) (*models.User, string, error) {
	var user models.User
	err := a.db.WithContext(ctx).Where("email = ?", strings.TrimSpace(in.Email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", common.Unauthorized("Unauthorised.")
	}
	if err != nil {
		return nil, "", fmt.Errorf("find user: %w", err)
	}

	if !CheckPasswordHash(in.Password, user.Password) {
		return nil, "", common.Unauthorized("Unauthorised.")
	}

	token, err := a.tokens.Issue(&user)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

func (a *AuthModule) register(c *gin.Context) {
	var in RegisterInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}

	user, token, err := a.Register(c.Request.Context(), in)
	if err != nil {
		common.SendError(c, err)
		return
	}

	common.SendResponse(c, http.StatusCreated, gin.H{"token": token, "name": user.Name}, "User register successfully.")
}

func (a *AuthModule) login(c *gin.Context) {
	var in LoginInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}

	user, token, err := a.Login(c.Request.Context(), in)
	if err != nil {
		common.SendError(c, err)
		return
	}

	common.SendResponse(c, http.StatusOK, gin.H{"token": token, "name": user.Name}, "User login successfully.")
}

func (a *AuthModule) rateLimit(c *gin.Context) {
	if a.limiter == nil {
		c.Next()
		return
	}

	ip, err := httprate.KeyByIP(c.Request)
	if err != nil {
		c.Next()
		return
	}

	if a.limiter.OnLimit(c.Writer, c.Request, ip+":"+c.FullPath()) {
		common.SendStatus(c, http.StatusTooManyRequests, "Too Many Attempts.")
		return
	}
	c.Next()
}

// RequireAuth resolves the bearer token to a live user and stores it on the
// context, or answers 401.
func (a *AuthModule) RequireAuth(c *gin.Context) {
	user, err := a.authenticate(c)
	if err != nil {
		common.SendError(c, err)
		return
	}

	c.Set(currentUserKey, user)
	c.Next()
}

func (a *AuthModule) authenticate(c *gin.Context) (*models.User, error) {
	unauthenticated := common.Unauthorized("Unauthenticated.")

	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return nil, unauthenticated
	}

	id, err := a.tokens.Parse(strings.TrimSpace(header[7:]))
	if err != nil {
		return nil, unauthenticated
	}

	var user models.User
	err = a.db.WithContext(c.Request.Context()).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, unauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load current user: %w", err)
	}
	return &user, nil
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(c *gin.Context) {
	if !policy.IsAdmin(CurrentUser(c)) {
		common.SendError(c, common.Unauthorized("Unauthorized."))
		return
	}
	c.Next()
}

// CurrentUser returns the user stored by RequireAuth, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// EmailTaken reports whether another account, including a soft-deleted one,
// already uses email. exceptID excludes the caller's own row.
func EmailTaken(db *gorm.DB, email string, exceptID uint) (bool, error) {
	var count int64
	q := db.Unscoped().Model(&models.User{}).Where("email = ?", email)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return count > 0, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(bytes), nil
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
