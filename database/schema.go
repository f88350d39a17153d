package database

// Schema statements executed at boot, idempotent by IF NOT EXISTS. Money is
// DECIMAL(10,2); statuses are ENUMs so the database rejects unknown values.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
	    id BIGINT PRIMARY KEY AUTO_INCREMENT,
	    email VARCHAR(255) NOT NULL,
	    password_hash VARCHAR(100) NOT NULL,
	    name VARCHAR(200) NOT NULL,
	    role ENUM('customer', 'admin') NOT NULL DEFAULT 'customer',
	    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	    UNIQUE KEY uk_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS products (
	    id BIGINT PRIMARY KEY AUTO_INCREMENT,
	    sku VARCHAR(64) NOT NULL,
	    slug VARCHAR(255) NOT NULL,
	    name VARCHAR(255) NOT NULL,
	    description TEXT,
	    price DECIMAL(10,2) NOT NULL,
	    stock INT NOT NULL DEFAULT 0,
	    availability ENUM('in-stock', 'out-of-stock', 'pre-order') NOT NULL DEFAULT 'out-of-stock',
	    image VARCHAR(512) NOT NULL DEFAULT '',
	    ratings_average DECIMAL(3,2) NOT NULL DEFAULT 4.50,
	    ratings_quantity INT NOT NULL DEFAULT 0,
	    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	    deleted_at TIMESTAMP NULL,
	    UNIQUE KEY uk_products_sku (sku),
	    UNIQUE KEY uk_products_slug (slug),
	    INDEX idx_products_availability (availability),
	    CONSTRAINT chk_products_stock CHECK (stock >= 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS carts (
	    id BIGINT PRIMARY KEY AUTO_INCREMENT,
	    user_id BIGINT NULL,
	    session_id VARCHAR(36) NULL,
	    status ENUM('active', 'converted', 'abandoned') NOT NULL DEFAULT 'active',
	    discounts JSON,
	    sub_total DECIMAL(10,2) NOT NULL DEFAULT 0,
	    total_quantity INT NOT NULL DEFAULT 0,
	    total_price DECIMAL(10,2) NOT NULL DEFAULT 0,
	    version INT NOT NULL DEFAULT 1,
	    active_marker TINYINT AS (IF(status = 'active', 1, NULL)) STORED,
	    refreshed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	    UNIQUE KEY uk_carts_user_active (user_id, active_marker),
	    UNIQUE KEY uk_carts_session_active (session_id, active_marker),
	    INDEX idx_carts_user_status (user_id, status),
	    INDEX idx_carts_session (session_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS cart_items (
	    id BIGINT PRIMARY KEY AUTO_INCREMENT,
	    cart_id BIGINT NOT NULL,
	    product_id BIGINT NOT NULL,
	    quantity INT NOT NULL,
	    price DECIMAL(10,2) NOT NULL,
	    name VARCHAR(255) NOT NULL,
	    image VARCHAR(512) NOT NULL DEFAULT '',
	    discount DECIMAL(10,2) NULL,
	    position INT NOT NULL DEFAULT 0,
	    FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE,
	    UNIQUE KEY uk_cart_items_line (cart_id, product_id),
	    CONSTRAINT chk_cart_items_quantity CHECK (quantity >= 1)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS orders (
	    id BIGINT PRIMARY KEY AUTO_INCREMENT,
	    order_number VARCHAR(20) NOT NULL,
	    user_id BIGINT NOT NULL,
	    status ENUM('pending', 'processing', 'shipped', 'delivered', 'cancelled',
	                'returned', 'refunded', 'completed', 'on_hold', 'failed') NOT NULL DEFAULT 'pending',
	    payment_status ENUM('pending', 'paid', 'refunded', 'partially_refunded') NOT NULL DEFAULT 'pending',
	    items_price DECIMAL(10,2) NOT NULL,
	    tax_price DECIMAL(10,2) NOT NULL,
	    shipping_price DECIMAL(10,2) NOT NULL,
	    discount_price DECIMAL(10,2) NOT NULL,
	    total_price DECIMAL(10,2) NOT NULL,
	    refund_amount DECIMAL(10,2) NOT NULL DEFAULT 0,
	    ship_full_name VARCHAR(200) NOT NULL DEFAULT '',
	    ship_line1 VARCHAR(255) NOT NULL DEFAULT '',
	    ship_line2 VARCHAR(255) NOT NULL DEFAULT '',
	    ship_city VARCHAR(100) NOT NULL DEFAULT '',
	    ship_postal_code VARCHAR(20) NOT NULL DEFAULT '',
	    ship_country VARCHAR(100) NOT NULL DEFAULT '',
	    payment_method VARCHAR(50) NOT NULL DEFAULT '',
	    is_paid BOOLEAN NOT NULL DEFAULT FALSE,
	    paid_at TIMESTAMP NULL,
	    payment_id VARCHAR(100) NOT NULL DEFAULT '',
	    payment_currency VARCHAR(10) NOT NULL DEFAULT '',
	    tracking_number VARCHAR(100) NOT NULL DEFAULT '',
	    shipping_provider VARCHAR(100) NOT NULL DEFAULT '',
	    shipped_at TIMESTAMP NULL,
	    delivered_at TIMESTAMP NULL,
	    stock_released BOOLEAN NOT NULL DEFAULT FALSE,
	    cancellation_note VARCHAR(500) NOT NULL DEFAULT '',
	    version INT NOT NULL DEFAULT 1,
	    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	    UNIQUE KEY uk_orders_number (order_number),
	    INDEX idx_orders_user (user_id),
	    INDEX idx_orders_status (status),
	    INDEX idx_orders_created_at (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS order_items (
	    id BIGINT PRIMARY KEY AUTO_INCREMENT,
	    order_id BIGINT NOT NULL,
	    product_id BIGINT NOT NULL,
	    sku VARCHAR(64) NOT NULL,
	    name VARCHAR(255) NOT NULL,
	    price DECIMAL(10,2) NOT NULL,
	    image VARCHAR(512) NOT NULL DEFAULT '',
	    quantity INT NOT NULL,
	    FOREIGN KEY (order_id) REFERENCES orders(id),
	    INDEX idx_order_items_order (order_id),
	    INDEX idx_order_items_product (product_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS order_status_history (
	    id BIGINT PRIMARY KEY AUTO_INCREMENT,
	    order_id BIGINT NOT NULL,
	    status ENUM('pending', 'processing', 'shipped', 'delivered', 'cancelled',
	                'returned', 'refunded', 'completed', 'on_hold', 'failed') NOT NULL,
	    description VARCHAR(500) NOT NULL DEFAULT '',
	    actor_id BIGINT NULL,
	    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	    FOREIGN KEY (order_id) REFERENCES orders(id),
	    INDEX idx_order_history_order (order_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reviews (
	    id BIGINT PRIMARY KEY AUTO_INCREMENT,
	    product_id BIGINT NOT NULL,
	    user_id BIGINT NOT NULL,
	    rating INT NOT NULL,
	    title VARCHAR(255) NOT NULL DEFAULT '',
	    comment TEXT,
	    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	    deleted_at TIMESTAMP NULL,
	    FOREIGN KEY (product_id) REFERENCES products(id),
	    UNIQUE KEY uk_reviews_product_user (product_id, user_id),
	    INDEX idx_reviews_product (product_id),
	    CONSTRAINT chk_reviews_rating CHECK (rating BETWEEN 1 AND 5)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS review_reactions (
	    id BIGINT PRIMARY KEY AUTO_INCREMENT,
	    review_id BIGINT NOT NULL,
	    user_id BIGINT NOT NULL,
	    kind ENUM('like', 'dislike') NOT NULL,
	    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	    FOREIGN KEY (review_id) REFERENCES reviews(id) ON DELETE CASCADE,
	    UNIQUE KEY uk_reactions_review_user (review_id, user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// InitSchema creates all tables.
func (db *DB) InitSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := db.SQL.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
