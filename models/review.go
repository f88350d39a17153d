package models

import "time"

type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

// Review carries derived Likes/Dislikes counts; both always equal the size of
// the corresponding reaction membership set.
type Review struct {
	ID        int64      `db:"id" json:"id"`
	ProductID int64      `db:"product_id" json:"product_id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Rating    int        `db:"rating" json:"rating"`
	Title     string     `db:"title" json:"title"`
	Comment   string     `db:"comment" json:"comment"`
	Likes     int        `db:"likes" json:"likes"`
	Dislikes  int        `db:"dislikes" json:"dislikes"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

func (r *Review) IsDeleted() bool { return r.DeletedAt != nil }
