// Package policy holds the ownership and visibility predicates shared by every
// handler. A nil actor is an anonymous viewer.
package policy

import "blogroll/models"

func actorID(actor *models.User) uint {
	if actor == nil {
		return 0
	}
	return actor.ID
}

// CanManageBlog reports whether actor may edit, delete or post to blog.
func CanManageBlog(actor *models.User, blog *models.Blog) bool {
	return actor != nil && blog != nil && blog.OwnerID == actor.ID
}

// CanManagePost allows the post author and the owner of the blog it lives in.
func CanManagePost(actor *models.User, post *models.Post, blog *models.Blog) bool {
	if actor == nil || post == nil {
		return false
	}
	return post.OwnerID == actor.ID || CanManageBlog(actor, blog)
}

// CanModerateComment allows the comment author and the post owner to toggle
// visibility or delete the comment.
func CanModerateComment(actor *models.User, comment *models.Comment, post *models.Post) bool {
	id := actorID(actor)
	if id == 0 || comment == nil {
		return false
	}
	return comment.UserID == id || (post != nil && post.OwnerID == id)
}

// CanEditComment is limited to the author.
func CanEditComment(actor *models.User, comment *models.Comment) bool {
	id := actorID(actor)
	return id != 0 && comment != nil && comment.UserID == id
}

// CommentVisibleTo is the read filter for comment listings. It goes through
// the same owner path as CanModerateComment.
func CommentVisibleTo(viewer *models.User, comment *models.Comment, post *models.Post) bool {
	return comment.IsVisible || CanModerateComment(viewer, comment, post)
}

func CanManageFolder(actor *models.User, folder *models.Folder) bool {
	return actor != nil && folder != nil && folder.UserID == actor.ID
}

func IsAdmin(actor *models.User) bool {
	return actor != nil && actor.IsAdmin
}
