package domain

const (
	ViewerIdCtxKey = "attestry-viewerId"
)
