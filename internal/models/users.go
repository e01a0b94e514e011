package models

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	otpSecretAttempts = 5
	otpPeriodSeconds  = 300
)

var ErrOTPSecretExhausted = errors.New("could not generate a unique otp secret")

// CustomUser 注册用户；FCMToken 优先于 PhoneNumber 作为通知渠道
type CustomUser struct {
	ID                  uint      `json:"id" gorm:"primaryKey"`
	Username            string    `json:"username" gorm:"size:100;uniqueIndex;not null"`
	PhoneNumber         string    `json:"phone_number" gorm:"size:15;index"`
	PasswordHash        string    `json:"-" gorm:"size:255"`
	FCMToken            string    `json:"fcm_token,omitempty" gorm:"size:255"`
	OTP                 string    `json:"-" gorm:"size:64;uniqueIndex"`
	PhoneNumberVerified bool      `json:"phone_number_verified" gorm:"default:false"`
	CreatedAt           time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time `json:"-" gorm:"autoUpdateTime"`
}

func (CustomUser) TableName() string { return "custom_users" }

// BeforeCreate 为没有密钥的用户生成 OTP 密钥
func (u *CustomUser) BeforeCreate(tx *gorm.DB) error {
	if u.OTP != "" {
		return nil
	}
	secret, err := GenerateOTPSecret(tx)
	if err != nil {
		return err
	}
	u.OTP = secret
	return nil
}

// GenerateOTPSecret 生成库内唯一的 base32 密钥，最多尝试 otpSecretAttempts 次
func GenerateOTPSecret(db *gorm.DB) (string, error) {
	for i := 0; i < otpSecretAttempts; i++ {
		secret, err := randomBase32(20)
		if err != nil {
			return "", err
		}
		var n int64
		if err := db.Session(&gorm.Session{NewDB: true}).Model(&CustomUser{}).Where("otp = ?", secret).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return secret, nil
		}
	}
	return "", ErrOTPSecretExhausted
}

func randomBase32(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

func otpOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    otpPeriodSeconds,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// OTPCode 当前时间窗口的验证码
func (u *CustomUser) OTPCode(at time.Time) (string, error) {
	return totp.GenerateCodeCustom(u.OTP, at, otpOpts())
}

// VerifyOTP 校验验证码
func (u *CustomUser) VerifyOTP(code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, u.OTP, at, otpOpts())
	return err == nil && ok
}

func (u *CustomUser) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

func (u *CustomUser) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func CreateUser(ctx context.Context, db *gorm.DB, user *CustomUser) error {
	return db.WithContext(ctx).Create(user).Error
}

func UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&CustomUser{}).Where("username = ?", username).Count(&n).Error
	return n > 0, err
}

func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*CustomUser, error) {
	var user CustomUser
	if err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByPhone(ctx context.Context, db *gorm.DB, phone string) (*CustomUser, error) {
	var user CustomUser
	if err := db.WithContext(ctx).Where("phone_number = ?", phone).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func MarkPhoneVerified(ctx context.Context, db *gorm.DB, user *CustomUser) error {
	if err := db.WithContext(ctx).Model(user).Update("phone_number_verified", true).Error; err != nil {
		return err
	}
	user.PhoneNumberVerified = true
	return nil
}

// EachUserBatch 分批只读遍历全部用户
func EachUserBatch(ctx context.Context, db *gorm.DB, size int, fn func([]CustomUser) error) error {
	if size <= 0 {
		size = 500
	}
	var batch []CustomUser
	res := db.WithContext(ctx).Model(&CustomUser{}).Order("id").
		FindInBatches(&batch, size, func(tx *gorm.DB, _ int) error {
			users := make([]CustomUser, len(batch))
			copy(users, batch)
			return fn(users)
		})
	return res.Error
}
