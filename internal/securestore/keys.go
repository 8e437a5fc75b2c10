package securestore

// Keys shared by more than one component.
const (
	KeyMasterKey = "cortexos.masterkey"
	KeyUserSalt  = "cortexos.usersalt"
)
